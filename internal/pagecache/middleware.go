package pagecache

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/listing"
	"github.com/strideline/storefront/internal/platform/observability"
)

const (
	// HeaderCache reports HIT or MISS.
	HeaderCache     = "X-Cache"
	metricNamespace = "github.com/strideline/storefront/internal/pagecache"
)

// Cache serves repeated GET requests for page data from a Store.
type Cache struct {
	store    Store
	ttl      time.Duration
	requests metric.Int64Counter
	metered  bool
}

// New constructs a Cache over store.
func New(store Store, ttl time.Duration) *Cache {
	counter, err := otel.GetMeterProvider().Meter(metricNamespace).Int64Counter(
		"pagecache.requests",
		metric.WithDescription("Page cache lookups by result"),
	)
	return &Cache{store: store, ttl: ttl, requests: counter, metered: err == nil}
}

// Store exposes the underlying store for invalidation.
func (c *Cache) Store() Store {
	return c.store
}

// Middleware caches 200 responses keyed by Key. Responses marked Cache-Control: no-store are passed
// through uncached.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || c.store == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		logger := observability.FromContext(ctx)
		key := Key(r)

		entry, ok, err := c.store.Get(ctx, key)
		if err != nil {
			logger.Warn("pagecache: lookup failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			c.count(r, "hit")
			w.Header().Set(HeaderCache, "HIT")
			w.Header().Set("Content-Type", entry.ContentType)
			w.Header().Set("Age", ageSeconds(entry.StoredAt))
			w.WriteHeader(entry.Status)
			_, _ = w.Write(entry.Body)
			return
		}

		c.count(r, "miss")
		w.Header().Set(HeaderCache, "MISS")
		rec := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if !cacheable(rec.status, w.Header()) {
			return
		}
		stored := Entry{
			Status:      rec.status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
			StoredAt:    time.Now().UTC(),
		}
		if err := c.store.Set(ctx, r.URL.Path, key, stored, c.ttl); err != nil {
			logger.Warn("pagecache: store failed", zap.String("key", key), zap.Error(err))
		}
	})
}

// Key identifies the page a request asks for: its path plus the canonical filter state and search
// term. Parameters the page handlers ignore do not produce new keys.
func Key(r *http.Request) string {
	query := r.URL.Query()
	values := listing.ParseState(query).Values()
	if q := strings.TrimSpace(query.Get("q")); q != "" {
		values.Set("q", q)
	}
	if len(values) == 0 {
		return r.URL.Path
	}
	return r.URL.Path + "?" + values.Encode()
}

func cacheable(status int, header http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	for _, directive := range strings.Split(header.Get("Cache-Control"), ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
			return false
		}
	}
	return true
}

func (c *Cache) count(r *http.Request, result string) {
	if c.metered {
		c.requests.Add(r.Context(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func ageSeconds(storedAt time.Time) string {
	age := time.Since(storedAt)
	if age < 0 {
		age = 0
	}
	return strconv.FormatInt(int64(age/time.Second), 10)
}

// bufferingWriter tees the body so it can be stored after the handler returns.
type bufferingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (b *bufferingWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = status
	b.ResponseWriter.WriteHeader(status)
}

func (b *bufferingWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	b.buf.Write(p)
	return b.ResponseWriter.Write(p)
}
