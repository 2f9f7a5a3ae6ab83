package idempotency

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strideline/storefront/internal/platform/requestctx"
)

func counting(status int) (http.Handler, *int32) {
	var calls int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"call":%d,"echo":%s}`, n, body)
	}), &calls
}

func send(h http.Handler, browser, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(body))
	if key != "" {
		req.Header.Set(Header, key)
	}
	req = req.WithContext(requestctx.WithBrowser(req.Context(), browser))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReplaysCompletedResponse(t *testing.T) {
	next, calls := counting(http.StatusOK)
	h := Middleware(NewMemoryStore())(next)

	first := send(h, "b1", "k1", `{"qty":1}`)
	second := send(h, "b1", "k1", `{"qty":1}`)

	if *calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", *calls)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected replayed body %q, got %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" || second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected replay headers %v", second.Header())
	}
}

func TestKeysAreScopedPerBrowser(t *testing.T) {
	next, calls := counting(http.StatusOK)
	h := Middleware(NewMemoryStore())(next)

	send(h, "b1", "k1", `{}`)
	send(h, "b2", "k1", `{}`)
	if *calls != 2 {
		t.Fatalf("expected independent keys per browser, handler ran %d times", *calls)
	}
}

func TestRejectsReusedKeyWithDifferentBody(t *testing.T) {
	next, _ := counting(http.StatusOK)
	h := Middleware(NewMemoryStore())(next)

	send(h, "b1", "k1", `{"qty":1}`)
	rec := send(h, "b1", "k1", `{"qty":2}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestPendingKeyConflicts(t *testing.T) {
	store := NewMemoryStore()
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(`{}`))
	if _, _, err := store.Reserve(context.Background(), scope("b1", "k1"), fingerprintOf(req, []byte(`{}`)), time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	next, calls := counting(http.StatusOK)
	rec := send(Middleware(store)(next), "b1", "k1", `{}`)
	if rec.Code != http.StatusConflict || *calls != 0 {
		t.Fatalf("expected 409 without running handler, got %d after %d calls", rec.Code, *calls)
	}
}

func TestServerErrorsReleaseKey(t *testing.T) {
	next, calls := counting(http.StatusServiceUnavailable)
	h := Middleware(NewMemoryStore())(next)

	send(h, "b1", "k1", `{}`)
	send(h, "b1", "k1", `{}`)
	if *calls != 2 {
		t.Fatalf("expected retry after 5xx to run again, ran %d times", *calls)
	}
}

func TestWithoutKeyPassesThrough(t *testing.T) {
	next, calls := counting(http.StatusOK)
	h := Middleware(NewMemoryStore())(next)

	send(h, "b1", "", `{}`)
	send(h, "b1", "", `{}`)
	if *calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", *calls)
	}
	if rec := send(h, "b1", strings.Repeat("k", maxKeyLength+1), `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized key to be rejected, got %d", rec.Code)
	}
}

func TestMemoryStoreExpiresKeys(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Complete(ctx, "k", Record{Fingerprint: "f", Status: http.StatusOK}, time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if state, _, _ := store.Reserve(ctx, "k", "f", time.Minute); state != StateCompleted {
		t.Fatalf("expected completed record, got %v", state)
	}
	now = now.Add(2 * time.Minute)
	if state, _, _ := store.Reserve(ctx, "k", "f", time.Minute); state != StateNew {
		t.Fatalf("expected expired key to be reservable, got %v", state)
	}
}

func TestRedisUnavailableFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	next, calls := counting(http.StatusOK)
	h := Middleware(NewRedisStore(client))(next)
	rec := send(h, "b1", "k1", `{}`)
	if rec.Code != http.StatusOK || *calls != 1 {
		t.Fatalf("expected request to be served without replay protection, got %d after %d calls", rec.Code, *calls)
	}
}

func TestPanickingHandlerReleasesKey(t *testing.T) {
	store := NewMemoryStore()
	panicking := true
	h := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if panicking {
			panic("cart write exploded")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate to the recovery middleware")
			}
		}()
		send(h, "b1", "k1", `{}`)
	}()

	panicking = false
	if rec := send(h, "b1", "k1", `{}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected retry after panic to run the handler, got %d", rec.Code)
	}
}

func TestMemoryStoreSweepsExpiredKeys(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		if _, _, err := store.Reserve(ctx, fmt.Sprintf("b1:%d", i), "f", time.Second); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	if store.Len() != 200 {
		t.Fatalf("expected 200 keys, got %d", store.Len())
	}
	now = now.Add(time.Hour)
	if _, _, err := store.Reserve(ctx, "b2:fresh", "f", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if n := store.Len(); n != 1 {
		t.Fatalf("expected expired keys to be swept, %d retained", n)
	}
}
