package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/platform/httpx"
	"github.com/strideline/storefront/internal/platform/observability"
	"github.com/strideline/storefront/internal/platform/requestctx"
)

const (
	// Header carries the client-chosen key.
	Header = "Idempotency-Key"
	// ReplayHeader marks a replayed response.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength = 128
	maxBodyBytes = 64 * 1024
)

type config struct {
	ttl time.Duration
}

// Option customises Middleware.
type Option func(*config)

// WithTTL sets how long keys are remembered.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// Middleware makes mutations with an Idempotency-Key header safe to retry. Keys are scoped to the
// browser. Requests without the header pass straight through, as do requests whose key cannot be
// reserved because the store is down. A retried key with a different method, path or body is
// rejected with 422; a retry while the first attempt is still running gets 409.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(Header))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_idempotency_key", "idempotency key is too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "unable to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := scope(requestctx.Browser(ctx), key)
			fingerprint := fingerprintOf(r, body)
			logger := observability.FromContext(ctx).With(zap.String("idempotency_key", key))

			state, rec, err := store.Reserve(ctx, scoped, fingerprint, cfg.ttl)
			if err != nil {
				logger.Warn("idempotency: reserve failed, serving without replay protection", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if state != StateNew && rec.Fingerprint != fingerprint {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key was used for a different request", http.StatusUnprocessableEntity))
				return
			}
			switch state {
			case StateCompleted:
				replay(w, rec)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.Conflict("idempotency_in_progress", "a request with this idempotency key is still in progress"))
				return
			}

			tee := &teeWriter{ResponseWriter: w, status: http.StatusOK}
			settled := false
			defer func() {
				if settled {
					return
				}
				// the handler panicked; free the key so the client can retry
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					logger.Warn("idempotency: release failed", zap.Error(err))
				}
			}()
			next.ServeHTTP(tee, r)

			if tee.status >= http.StatusInternalServerError {
				settled = true
				if err := store.Release(ctx, scoped); err != nil {
					logger.Warn("idempotency: release failed", zap.Error(err))
				}
				return
			}
			done := Record{
				Fingerprint: fingerprint,
				Status:      tee.status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        tee.buf.Bytes(),
			}
			settled = true
			if err := store.Complete(ctx, scoped, done, cfg.ttl); err != nil {
				logger.Warn("idempotency: store response failed", zap.Error(err))
			}
		})
	}
}

func scope(browser, key string) string {
	if browser == "" {
		browser = "anonymous"
	}
	return browser + ":" + key
}

func fingerprintOf(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.EscapedPath()))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, rec Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

type teeWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (t *teeWriter) WriteHeader(status int) {
	if t.wroteHeader {
		return
	}
	t.wroteHeader = true
	t.status = status
	t.ResponseWriter.WriteHeader(status)
}

func (t *teeWriter) Write(p []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	t.buf.Write(p)
	return t.ResponseWriter.Write(p)
}
