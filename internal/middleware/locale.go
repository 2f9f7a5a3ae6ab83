package middleware

import (
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/platform/httpx"
	"github.com/strideline/storefront/internal/platform/observability"
)

const (
	// CountryCookie remembers the shopper's country between visits.
	CountryCookie    = "country"
	countryCookieAge = 365 * 24 * time.Hour
	defaultGeoHeader = "X-Vercel-IP-Country"
)

// DefaultExemptPrefixes bypass locale processing entirely.
var DefaultExemptPrefixes = []string{"/studio", "/api", "/assets", "/healthz", "/readyz", "/favicon.ico"}

type localeConfig struct {
	geoHeader string
	exempt    []string
	secure    bool
}

// LocaleOption customises the locale middleware.
type LocaleOption func(*localeConfig)

// WithGeoHeader names the edge header carrying the visitor's country.
func WithGeoHeader(name string) LocaleOption {
	return func(cfg *localeConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.geoHeader = name
		}
	}
}

// WithExemptPrefixes replaces the exempt path prefixes.
func WithExemptPrefixes(prefixes ...string) LocaleOption {
	return func(cfg *localeConfig) {
		cfg.exempt = append([]string(nil), prefixes...)
	}
}

// WithSecureCookie marks the country cookie Secure.
func WithSecureCookie(secure bool) LocaleOption {
	return func(cfg *localeConfig) {
		cfg.secure = secure
	}
}

// Locale enforces the locale-prefixed URL scheme:
//   - a supported locale segment passes through and refreshes the country cookie;
//   - a locale-shaped but unsupported segment is a 404;
//   - anything else is permanently redirected to the preferred locale (cookie, then geo header, then default).
func Locale(table *locale.Table, opts ...LocaleOption) func(http.Handler) http.Handler {
	cfg := localeConfig{geoHeader: defaultGeoHeader, exempt: DefaultExemptPrefixes}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			if p == "" {
				p = "/"
			}
			if isExempt(p, cfg.exempt) {
				next.ServeHTTP(w, r)
				return
			}

			first, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
			switch {
			case table.IsValidLocale(first):
				country := table.LocaleToCountry(first)
				http.SetCookie(w, &http.Cookie{
					Name:     CountryCookie,
					Value:    country,
					Path:     "/",
					MaxAge:   int(countryCookieAge / time.Second),
					SameSite: http.SameSiteLaxMode,
					Secure:   cfg.secure,
				})
				w.Header().Set("Content-Language", first)
				next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), first, country)))

			case locale.LooksLikeLocale(first):
				httpx.WriteError(r.Context(), w, httpx.NotFound("unsupported locale"))

			default:
				country := preferredCountry(r, table, cfg.geoHeader)
				target := "/" + table.CountryToLocale(country)
				if p != "/" {
					target += p
				}
				if r.URL.RawQuery != "" {
					target += "?" + r.URL.RawQuery
				}
				observability.FromContext(r.Context()).Debug("locale redirect",
					zap.String("from", p),
					zap.String("to", target),
				)
				w.Header().Add("Vary", "Cookie")
				w.Header().Add("Vary", cfg.geoHeader)
				http.Redirect(w, r, target, http.StatusPermanentRedirect)
			}
		})
	}
}

func preferredCountry(r *http.Request, table *locale.Table, geoHeader string) string {
	if c, err := r.Cookie(CountryCookie); err == nil && table.IsSupportedCountry(c.Value) {
		return c.Value
	}
	if geo := r.Header.Get(geoHeader); table.IsSupportedCountry(geo) {
		return geo
	}
	return table.DefaultCountry()
}

func isExempt(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	last := p[strings.LastIndex(p, "/")+1:]
	return path.Ext(last) != ""
}
