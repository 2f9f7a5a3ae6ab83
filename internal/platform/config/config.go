package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultCMSAPIVersion     = "2023-05-03"
	defaultCommerceVersion   = "2024-04"
	defaultUpstreamTimeout   = 8 * time.Second
	defaultGeoHeader         = "X-Vercel-IP-Country"
	defaultPageCacheTTL      = 5 * time.Minute
	defaultPriceConcurrency  = 4
	defaultLogLevel          = "info"
	defaultStudioOriginLocal = "http://localhost:3333"
	defaultSiteName          = "Strideline"
	defaultSiteURL           = "http://localhost:8080"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Site       SiteConfig
	CMS        CMSConfig
	Commerce   CommerceConfig
	Revalidate RevalidateConfig
	Cache      CacheConfig
	Locale     LocaleConfig
	CORS       CORSConfig
	LogLevel   string
	// FixturesPath points the catalog at a local YAML dataset instead of the CMS.
	FixturesPath string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string        `validate:"required,numeric"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	SecureCookies  bool
	Environment    string
}

// SiteConfig names the storefront and its public origin for canonical URLs.
type SiteConfig struct {
	Name    string `validate:"required"`
	BaseURL string `validate:"required,url"`
}

// CMSConfig identifies the headless CMS project serving catalog documents.
type CMSConfig struct {
	ProjectID  string `validate:"required_without=Fixtures,omitempty,alphanum"`
	Dataset    string `validate:"required_without=Fixtures"`
	APIVersion string `validate:"required"`
	Token      string
	UseCDN     bool
	Timeout    time.Duration `validate:"gt=0"`
	Fixtures   string
}

// CommerceConfig configures the commerce platform storefront API.
type CommerceConfig struct {
	StoreDomain      string        `validate:"required_without=Fixtures,omitempty,hostname"`
	AccessToken      string        `validate:"required_without=Fixtures"`
	APIVersion       string        `validate:"required"`
	Timeout          time.Duration `validate:"gt=0"`
	PriceConcurrency int           `validate:"gte=1,lte=16"`
	Fixtures         string
}

// RevalidateConfig holds the webhook shared secret.
type RevalidateConfig struct {
	Secret string `validate:"required"`
}

// CacheConfig selects the page cache and client state backends.
type CacheConfig struct {
	RedisURL     string        `validate:"omitempty,url"`
	PageCacheTTL time.Duration `validate:"gt=0"`
}

// LocaleConfig controls locale detection.
type LocaleConfig struct {
	GeoHeader string `validate:"required"`
}

// CORSConfig lists origins allowed to call /api (the CMS studio, preview hosts).
type CORSConfig struct {
	AllowedOrigins []string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load assembles the configuration from defaults, .env overrides, environment variables and
// explicit maps (lowest to highest precedence). Missing required settings and values that do not
// parse fail fast with a *ValidationError.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	e := &env{layers: []map[string]string{options.envMap}, dotEnv: dotEnv, system: options.useSystemEnv}

	fixtures := e.str("STOREFRONT_CATALOG_FIXTURES", "")
	cfg := Config{
		Server: ServerConfig{
			Port:           e.str("PORT", e.str("STOREFRONT_PORT", defaultPort)),
			ReadTimeout:    e.duration("STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   e.duration("STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    e.duration("STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: e.duration("STOREFRONT_REQUEST_TIMEOUT", defaultRequestTimeout),
			SecureCookies:  e.flag("STOREFRONT_SECURE_COOKIES", false),
			Environment:    e.str("STOREFRONT_ENV", "local"),
		},
		Site: SiteConfig{
			Name:    e.str("STOREFRONT_SITE_NAME", defaultSiteName),
			BaseURL: strings.TrimRight(e.str("STOREFRONT_SITE_URL", defaultSiteURL), "/"),
		},
		CMS: CMSConfig{
			ProjectID:  e.str("STOREFRONT_CMS_PROJECT_ID", ""),
			Dataset:    e.str("STOREFRONT_CMS_DATASET", ""),
			APIVersion: e.str("STOREFRONT_CMS_API_VERSION", defaultCMSAPIVersion),
			Token:      e.str("STOREFRONT_CMS_TOKEN", ""),
			UseCDN:     e.flag("STOREFRONT_CMS_USE_CDN", true),
			Timeout:    e.duration("STOREFRONT_CMS_TIMEOUT", defaultUpstreamTimeout),
			Fixtures:   fixtures,
		},
		Commerce: CommerceConfig{
			StoreDomain:      e.str("STOREFRONT_COMMERCE_STORE_DOMAIN", ""),
			AccessToken:      e.str("STOREFRONT_COMMERCE_ACCESS_TOKEN", ""),
			APIVersion:       e.str("STOREFRONT_COMMERCE_API_VERSION", defaultCommerceVersion),
			Timeout:          e.duration("STOREFRONT_COMMERCE_TIMEOUT", defaultUpstreamTimeout),
			PriceConcurrency: e.integer("STOREFRONT_COMMERCE_PRICE_CONCURRENCY", defaultPriceConcurrency),
			Fixtures:         fixtures,
		},
		Revalidate: RevalidateConfig{
			Secret: e.str("STOREFRONT_REVALIDATE_SECRET", ""),
		},
		Cache: CacheConfig{
			RedisURL:     e.str("STOREFRONT_REDIS_URL", ""),
			PageCacheTTL: e.duration("STOREFRONT_PAGE_CACHE_TTL", defaultPageCacheTTL),
		},
		Locale: LocaleConfig{
			GeoHeader: e.str("STOREFRONT_GEO_HEADER", defaultGeoHeader),
		},
		CORS: CORSConfig{
			AllowedOrigins: e.list("STOREFRONT_CORS_ALLOWED_ORIGINS", []string{defaultStudioOriginLocal}),
		},
		LogLevel:     strings.ToLower(e.str("LOG_LEVEL", defaultLogLevel)),
		FixturesPath: fixtures,
	}

	if err := validateConfig(cfg, e.malformed); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, malformed []string) error {
	fields := append([]string(nil), malformed...)
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, strings.TrimPrefix(fe.Namespace(), "Config."))
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	return &ValidationError{fields: fields}
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

// env resolves variables across the explicit map, the process environment and .env, in that order.
// Values that are set but do not parse are recorded by variable name.
type env struct {
	layers    []map[string]string
	dotEnv    map[string]string
	system    bool
	malformed []string
}

func (e *env) lookup(key string) (string, bool) {
	for _, layer := range e.layers {
		if v, ok := layer[key]; ok {
			return strings.TrimSpace(v), true
		}
	}
	if e.system {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v), true
		}
	}
	v, ok := e.dotEnv[key]
	return strings.TrimSpace(v), ok
}

func (e *env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.malformed = append(e.malformed, key)
		return fallback
	}
	return d
}

func (e *env) integer(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.malformed = append(e.malformed, key)
		return fallback
	}
	return n
}

func (e *env) flag(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	e.malformed = append(e.malformed, key)
	return fallback
}

func (e *env) list(key string, fallback []string) []string {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
