package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/strideline/storefront/internal/platform/requestctx"
)

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusBadGateway, zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		core, logs := observer.New(zapcore.DebugLevel)
		handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		})))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/en-se/women", nil))

		completed := logs.FilterMessage("request completed").All()
		if len(completed) != 1 {
			t.Fatalf("status %d: expected one completion log, got %d", tc.status, len(completed))
		}
		entry := completed[0]
		if entry.Level != tc.level {
			t.Fatalf("status %d: expected level %s, got %s", tc.status, tc.level, entry.Level)
		}
		if got := entry.ContextMap()["status"]; got != int64(tc.status) {
			t.Fatalf("status %d: logged status %v", tc.status, got)
		}
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en-se", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"internal_server_error"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged via fallback logger")
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var info requestctx.TraceInfo
	var ok bool
	handler := TraceMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		info, ok = requestctx.Trace(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/en-se", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatalf("expected trace info on context")
	}
	if info.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected propagated trace id, got %s", info.TraceID)
	}
}

func TestSanitizeRoute(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected /, got %q", got)
	}
	if got := SanitizeRoute("/en-se/\nwomen"); got != "/en-se/women" {
		t.Fatalf("expected control characters stripped, got %q", got)
	}
	if got := SanitizeRoute("/" + strings.Repeat("a", 400)); len(got) != 180 {
		t.Fatalf("expected truncation to 180, got %d", len(got))
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) || !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info level for unknown level name")
	}
}

func TestRequestLoggerRecordsLocaleAndCacheOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Language", "en-dk")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write([]byte(`{}`))
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/en-dk/men", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["locale"] != "en-dk" || fields["cache"] != "HIT" || fields["bytes"] != int64(2) {
		t.Fatalf("unexpected completion fields %v", fields)
	}
}

func TestSanitizeMethodStripsControlCharacters(t *testing.T) {
	if got := SanitizeMethod("GET\r\nX-Injected: 1"); got != "GETX-Injec" {
		t.Fatalf("unexpected sanitized method %q", got)
	}
}
