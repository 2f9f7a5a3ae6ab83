package observability

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/strideline/storefront/internal/platform/httpx"
	"github.com/strideline/storefront/internal/platform/requestctx"
)

// InjectLoggerMiddleware makes logger the request logger.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware scopes the request logger to the request and logs its completion. The
// completion entry records the matched route, the locale served (Content-Language) and the page
// cache outcome (X-Cache) alongside status and latency. 5xx logs at error, 4xx at warn.
func RequestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fields := []zap.Field{
				zap.String("request_id", chimw.GetReqID(ctx)),
				zap.String("method", SanitizeMethod(r.Method)),
				zap.String("path", SanitizeRoute(r.URL.Path)),
			}
			if id := requestctx.TraceID(ctx); id != "" {
				fields = append(fields, zap.String("trace_id", id))
			}
			if ip := remoteIP(r); ip != "" {
				fields = append(fields, zap.String("remote_ip", ip))
			}
			logger := requestctx.Logger(ctx).With(fields...)
			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			logger.Debug("request started")

			completed := false
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if !completed && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				route := SanitizeRoute(routePattern(r))
				if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
					span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
					if status >= http.StatusInternalServerError {
						span.SetStatus(codes.Error, http.StatusText(status))
					}
				}
				recordDuration(ctx, route, status, time.Since(start))

				entry := []zap.Field{
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int("bytes", ww.BytesWritten()),
				}
				if loc := ww.Header().Get("Content-Language"); loc != "" {
					entry = append(entry, zap.String("locale", loc))
				}
				if cache := ww.Header().Get("X-Cache"); cache != "" {
					entry = append(entry, zap.String("cache", cache))
				}
				if ce := logger.Check(levelFor(status), "request completed"); ce != nil {
					ce.Write(entry...)
				}
			}()

			next.ServeHTTP(ww, r)
			completed = true
		})
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// RecoveryMiddleware turns a panic into the 500 envelope and logs it with its stack. fallback is used
// when the request carries no logger.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == requestctx.NoopLogger() && fallback != nil {
					logger = fallback
				}
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(ctx, w, httpx.Internal())
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return clean(addr, addrLimit)
}
