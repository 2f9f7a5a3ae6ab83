package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	router := NewRouter()

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("default not implemented api", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected status 501, got %d", rr.Code)
		}
	})

	t.Run("studio reserved", func(t *testing.T) {
		for _, target := range []string{"/studio", "/studio/desk/product"} {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
			if rr.Code != http.StatusNotFound {
				t.Fatalf("%s: expected 404, got %d", target, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), `"error":"not_found"`) {
				t.Fatalf("%s: expected JSON envelope, got %s", target, rr.Body.String())
			}
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), errorNotFoundCode) {
			t.Fatalf("expected route_not_found code, got %s", rr.Body.String())
		}
	})
}

func TestRouterMethodNotAllowed(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/healthz", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(WithCORSOrigins("https://studio.example.com"))
	req := httptest.NewRequest(http.MethodOptions, "/api/revalidate", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://studio.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestHealthHandlersReadyz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	healthy := NewHealthHandlers(
		WithHealthClock(func() time.Time { return now }),
		WithHealthCheck("redis", func(context.Context) error { return nil }),
	)
	rr := httptest.NewRecorder()
	healthy.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	failing := NewHealthHandlers(
		WithHealthClock(func() time.Time { return now }),
		WithHealthCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") }),
	)
	rr = httptest.NewRecorder()
	failing.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decodeJSON[struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"checks"`
		Details []string `json:"details"`
	}](t, rr)
	if body.Status != healthStatusDegraded || body.Checks["redis"].Status != healthStatusError || len(body.Details) != 1 {
		t.Fatalf("unexpected readiness payload %+v", body)
	}
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(30 * time.Second) }),
	)
	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body := decodeJSON[map[string]any](t, rr)
	if body["status"] != healthStatusOK || body["version"] != "1.0.0" || body["commitSha"] != "abc123" || body["uptime"] != "30s" {
		t.Fatalf("unexpected health payload %v", body)
	}
}

func TestBrowserMiddlewareIssuesCookie(t *testing.T) {
	var seen string
	handler := BrowserMiddleware(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = BrowserID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != BrowserCookie || cookies[0].Value != seen || seen == "" {
		t.Fatalf("expected issued browser cookie matching context, got %v / %q", cookies, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: BrowserCookie, Value: seen})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("existing cookie should be reused")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: BrowserCookie, Value: "../../etc"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen == "../../etc" || len(rr.Result().Cookies()) != 1 {
		t.Fatalf("malformed cookie should be replaced")
	}
}
