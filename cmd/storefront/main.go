package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/catalog"
	"github.com/strideline/storefront/internal/clientstate"
	"github.com/strideline/storefront/internal/cms"
	"github.com/strideline/storefront/internal/commerce"
	"github.com/strideline/storefront/internal/handlers"
	"github.com/strideline/storefront/internal/idempotency"
	"github.com/strideline/storefront/internal/listing"
	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/middleware"
	"github.com/strideline/storefront/internal/pagecache"
	"github.com/strideline/storefront/internal/platform/config"
	"github.com/strideline/storefront/internal/platform/observability"
	"github.com/strideline/storefront/internal/revalidate"
	"github.com/strideline/storefront/internal/seo"
)

const cmsResultCacheTTL = 30 * time.Second

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", strings.Join(invalid.Fields(), ", "))
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	info := buildInfo(cfg, startedAt)
	baseLogger, err := observability.NewLogger(cfg.LogLevel,
		zap.String("environment", info.Environment),
		zap.String("version", info.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")

	table := locale.Default()
	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(info),
	}

	var (
		source       catalog.Source
		pricer       catalog.Pricer
		availability handlers.AvailabilityChecker
		purgers      []revalidate.Purger
	)
	if cfg.FixturesPath != "" {
		ds, err := catalog.LoadDataset(cfg.FixturesPath)
		if err != nil {
			logger.Fatal("failed to load catalog fixtures", zap.String("path", cfg.FixturesPath), zap.Error(err))
		}
		mem, err := catalog.NewMemorySource(ds)
		if err != nil {
			logger.Fatal("invalid catalog fixtures", zap.Error(err))
		}
		source, availability = mem, mem
		logger.Info("catalog: serving local fixtures", zap.String("path", cfg.FixturesPath))
	} else {
		cmsClient := cms.NewClient(
			cms.WithProject(cfg.CMS.ProjectID, cfg.CMS.Dataset),
			cms.WithAPIVersion(cfg.CMS.APIVersion),
			cms.WithToken(cfg.CMS.Token),
			cms.WithCDN(cfg.CMS.UseCDN),
			cms.WithTimeout(cfg.CMS.Timeout),
			cms.WithCacheTTL(cmsResultCacheTTL),
			cms.WithLogger(logger),
		)
		commerceClient := commerce.NewClient(
			commerce.WithStore(cfg.Commerce.StoreDomain, cfg.Commerce.AccessToken),
			commerce.WithAPIVersion(cfg.Commerce.APIVersion),
			commerce.WithTimeout(cfg.Commerce.Timeout),
			commerce.WithConcurrency(cfg.Commerce.PriceConcurrency),
			commerce.WithLogger(logger),
		)
		source = catalog.NewCMSSource(cmsClient)
		pricer, availability = commerceClient, commerceClient
		purgers = append(purgers, cmsClient)
	}

	catalogService, err := catalog.NewService(catalog.ServiceDeps{Source: source, Prices: pricer, Logger: logger})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	var (
		stateStorage clientstate.Storage = clientstate.NewMemoryStorage()
		pageStore    pagecache.Store     = pagecache.NewMemoryStore()
		keyStore     idempotency.Store   = idempotency.NewMemoryStore()
	)
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			logger.Fatal("invalid redis url", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		stateStorage = clientstate.NewRedisStorage(redisClient, 0)
		pageStore = pagecache.NewRedisStore(redisClient)
		keyStore = idempotency.NewRedisStore(redisClient)
		healthOpts = append(healthOpts, handlers.WithHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		logger.Info("cache: using redis", zap.String("addr", opts.Addr))
	}

	registry := clientstate.NewRegistry(stateStorage)
	cache := pagecache.New(pageStore, cfg.Cache.PageCacheTTL)

	hook, err := revalidate.NewHandler(revalidate.Deps{
		Secret:  cfg.Revalidate.Secret,
		Locales: table,
		Pages:   pageStore,
		Purgers: purgers,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise revalidate handler", zap.Error(err))
	}

	pages := handlers.NewPageHandlers(handlers.PageDeps{
		Catalog: catalogService,
		Locales: table,
		State:   registry,
		Site:    seo.Site{Name: cfg.Site.Name, BaseURL: cfg.Site.BaseURL},
		Cache:   cache.Middleware,
	})
	api := handlers.NewAPIHandlers(handlers.APIDeps{
		Catalog:      catalogService,
		Availability: availability,
		Locales:      table,
		State:        registry,
		Guard:        listing.NewGuard(),
		Revalidate:   hook,
		Idempotency:  idempotency.Middleware(keyStore),
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(
			handlers.BrowserMiddleware(cfg.Server.SecureCookies),
			middleware.Locale(table,
				middleware.WithGeoHeader(cfg.Locale.GeoHeader),
				middleware.WithSecureCookie(cfg.Server.SecureCookies),
			),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCORSOrigins(cfg.CORS.AllowedOrigins...),
		handlers.WithPageRoutes(pages.Routes),
		handlers.WithAPIRoutes(api.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Server.Environment,
		StartedAt:   started,
	}
}
