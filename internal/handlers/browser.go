package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/strideline/storefront/internal/clientstate"
	"github.com/strideline/storefront/internal/platform/requestctx"
)

const (
	// BrowserCookie namespaces client state per browser.
	BrowserCookie    = "sf_browser"
	browserCookieAge = 365 * 24 * time.Hour
)

// BrowserMiddleware ensures every request carries a browser id, issuing a cookie when absent or malformed.
func BrowserMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(BrowserCookie); err == nil && clientstate.ValidBrowserID(c.Value) {
				id = c.Value
			}
			if id == "" {
				id = clientstate.NewBrowserID()
				http.SetCookie(w, &http.Cookie{
					Name:     BrowserCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(browserCookieAge / time.Second),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithBrowser(r.Context(), id)))
		})
	}
}

// BrowserID returns the browser id set by BrowserMiddleware.
func BrowserID(ctx context.Context) string {
	return requestctx.Browser(ctx)
}
