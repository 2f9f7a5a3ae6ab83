package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/strideline/storefront/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc"})
	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NotFound("unsupported locale").WithDetails(map[string]any{"locale": "en-xx"}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected errors to be uncacheable, got %q", cc)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{"error": "not_found", "message": "unsupported locale", "status": float64(404), "trace_id": "abc", "locale": "en-xx"}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("%s: expected %v, got %v", k, v, body[k])
		}
	}
}

func TestNewErrorSanitizes(t *testing.T) {
	err := NewError("bad\ncode", strings.Repeat("x", 600), 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected default 500, got %d", err.Status)
	}
	if err.Code != "bad code" {
		t.Fatalf("expected newline replaced, got %q", err.Code)
	}
	if len(err.Message) != 512 {
		t.Fatalf("expected message truncated to 512, got %d", len(err.Message))
	}
	if NotFound(" ").Message != "not found" {
		t.Fatalf("expected default not found message")
	}
}

func TestConstructorsSetStatus(t *testing.T) {
	cases := []struct {
		err    Error
		status int
	}{
		{BadRequest("invalid_offset", "offset must not be negative"), http.StatusBadRequest},
		{Conflict("load_in_flight", "busy"), http.StatusConflict},
		{Unavailable("cart_unavailable", "cart is unavailable"), http.StatusServiceUnavailable},
		{Internal(), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Status != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.err.Code, tc.status, tc.err.Status)
		}
	}
	var err error = BadRequest("invalid_item", "variant id is required")
	if err.Error() != "invalid_item: variant id is required" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}
