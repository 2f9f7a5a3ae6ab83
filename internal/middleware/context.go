package middleware

import (
	"context"
	"strings"

	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/platform/requestctx"
)

// WithLocale stores the request's locale and derived country.
func WithLocale(ctx context.Context, loc, country string) context.Context {
	return requestctx.WithMarket(ctx, requestctx.Market{Locale: loc, Country: country})
}

// LocaleFromContext returns the locale resolved from the URL, if any.
func LocaleFromContext(ctx context.Context) (string, bool) {
	m, ok := requestctx.MarketFrom(ctx)
	return m.Locale, ok
}

// CountryFromContext returns the country derived from the URL locale, if any.
func CountryFromContext(ctx context.Context) (string, bool) {
	m, ok := requestctx.MarketFrom(ctx)
	return m.Country, ok && m.Country != ""
}

// LocalizedPath prefixes an internal path with the request's locale. External URLs, fragments and
// paths that already carry a locale are returned unchanged.
func LocalizedPath(ctx context.Context, path string) string {
	loc, ok := LocaleFromContext(ctx)
	if !ok || path == "" || strings.Contains(path, "://") || strings.HasPrefix(path, "#") || strings.HasPrefix(path, "//") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/"); locale.LooksLikeLocale(first) {
		return path
	}
	if path == "/" {
		return "/" + loc
	}
	return "/" + loc + path
}
