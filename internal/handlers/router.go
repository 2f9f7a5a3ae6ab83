package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/strideline/storefront/internal/platform/httpx"
)

// RouteRegistrar mounts one surface of the storefront.
type RouteRegistrar func(r chi.Router)

const (
	apiPrefix         = "/api"
	studioPrefix      = "/studio"
	defaultTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// surfaces collects what NewRouter mounts. Anything left nil falls back to a placeholder.
type surfaces struct {
	chain   []func(http.Handler) http.Handler
	health  *HealthHandlers
	origins []string
	pages   RouteRegistrar
	api     RouteRegistrar
}

// Option adjusts the surfaces mounted by NewRouter.
type Option func(*surfaces)

// NewRouter assembles the storefront: probes at the root, the reserved studio prefix, the JSON API
// under /api and the locale-prefixed page data routes for everything else.
func NewRouter(opts ...Option) chi.Router {
	s := surfaces{chain: []func(http.Handler) http.Handler{middleware.RequestID, middleware.RealIP}}
	for _, opt := range opts {
		opt(&s)
	}
	if s.health == nil {
		s.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range s.chain {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(unmatchedPath)
	r.MethodNotAllowed(unmatchedMethod)

	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.HandleFunc(studioPrefix, studioElsewhere)
	r.HandleFunc(studioPrefix+"/*", studioElsewhere)

	r.Route(apiPrefix, s.mountAPI)
	if s.pages != nil {
		r.Group(func(pages chi.Router) { s.pages(pages) })
	}
	return r
}

func (s surfaces) mountAPI(api chi.Router) {
	api.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Idempotent-Replay"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.api == nil {
		api.HandleFunc("/", apiUnavailable)
		api.HandleFunc("/*", apiUnavailable)
		return
	}
	s.api(api)
}

func unmatchedPath(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", r.URL.Path), http.StatusNotFound))
}

func unmatchedMethod(w http.ResponseWriter, r *http.Request) {
	msg := fmt.Sprintf("%s is not supported on %s", r.Method, r.URL.Path)
	httpx.WriteError(r.Context(), w, httpx.NewError("method_not_allowed", msg, http.StatusMethodNotAllowed))
}

// The CMS studio is deployed separately.
func studioElsewhere(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NotFound("studio is not served here"))
}

func apiUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("not_implemented", "api routes are not mounted", http.StatusNotImplemented))
}

// WithMiddlewares appends middleware applied to every surface.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(s *surfaces) { s.chain = append(s.chain, mw...) }
}

// WithRequestTimeout cancels request contexts after d; non-positive values use 30s.
func WithRequestTimeout(d time.Duration) Option {
	if d <= 0 {
		d = defaultTimeout
	}
	return WithMiddlewares(middleware.Timeout(d))
}

// WithHealthHandlers replaces the default probes.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(s *surfaces) { s.health = h }
}

// WithCORSOrigins lists browser origins allowed to call /api.
func WithCORSOrigins(origins ...string) Option {
	return func(s *surfaces) { s.origins = append(s.origins, origins...) }
}

// WithPageRoutes mounts the locale-prefixed page data routes.
func WithPageRoutes(reg RouteRegistrar) Option {
	return func(s *surfaces) { s.pages = reg }
}

// WithAPIRoutes mounts the /api surface.
func WithAPIRoutes(reg RouteRegistrar) Option {
	return func(s *surfaces) { s.api = reg }
}
