package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/strideline/storefront/internal/platform/requestctx"
)

const instrumentationName = "github.com/strideline/storefront/internal/platform/observability"

var (
	tracer     = otel.Tracer(instrumentationName)
	propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	duration   metric.Float64Histogram
)

func init() {
	h, err := otel.Meter(instrumentationName).Float64Histogram(
		"storefront.http.server.duration",
		metric.WithDescription("Latency of storefront requests by route and status"),
		metric.WithUnit("ms"),
	)
	if err == nil {
		duration = h
	}
}

// TraceMiddleware continues the caller's W3C trace (or starts one), names the server span after the
// method and path, and exposes the ids through requestctx.
func TraceMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, SanitizeMethod(r.Method)+" "+SanitizeRoute(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			sc := span.SpanContext()
			ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
				TraceID: sc.TraceID().String(),
				SpanID:  sc.SpanID().String(),
				Sampled: sc.IsSampled(),
			})
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.URLScheme(scheme),
		semconv.URLPath(SanitizeRoute(r.URL.Path)),
	}
	if r.Host != "" {
		attrs = append(attrs, semconv.ServerAddress(r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(ua))
	}
	return attrs
}

func recordDuration(ctx context.Context, route string, status int, elapsed time.Duration) {
	if duration == nil {
		return
	}
	duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
		semconv.HTTPRoute(route),
		attribute.String("http.response.status_class", strconv.Itoa(status/100)+"xx"),
	))
}
