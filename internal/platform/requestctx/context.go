// Package requestctx carries the values every storefront layer reads off a request: the scoped
// logger, trace identifiers, the resolved market and the browser namespace.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type key int

const (
	loggerKey key = iota
	traceKey
	marketKey
	browserKey
)

var nop = zap.NewNop()

// TraceInfo is the W3C trace context of the inbound request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// Market is the locale taken from the URL and the country it maps to.
type Market struct {
	Locale  string
	Country string
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger replaces the request logger. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(orBackground(ctx), loggerKey, logger)
}

// Logger returns the request logger, or the no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return nop
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nop
}

// NoopLogger is the logger Logger falls back to; compare against it to detect "no logger set".
func NoopLogger() *zap.Logger { return nop }

// WithTrace records the request's trace context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey, info)
}

// Trace returns the recorded trace context.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID is Trace(ctx).TraceID, or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithMarket records the resolved market and tags the request logger with it.
func WithMarket(ctx context.Context, m Market) context.Context {
	ctx = context.WithValue(orBackground(ctx), marketKey, m)
	if logger := Logger(ctx); logger != nop {
		ctx = WithLogger(ctx, logger.With(zap.String("locale", m.Locale), zap.String("country", m.Country)))
	}
	return ctx
}

// MarketFrom returns the market resolved for the request. Requests outside the locale scheme have none.
func MarketFrom(ctx context.Context) (Market, bool) {
	if ctx == nil {
		return Market{}, false
	}
	m, ok := ctx.Value(marketKey).(Market)
	return m, ok && m.Locale != ""
}

// WithBrowser records the browser namespace and tags the request logger with it.
func WithBrowser(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(orBackground(ctx), browserKey, id)
	if logger := Logger(ctx); logger != nop && id != "" {
		ctx = WithLogger(ctx, logger.With(zap.String("browser", id)))
	}
	return ctx
}

// Browser returns the browser namespace, or "".
func Browser(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(browserKey).(string)
	return id
}
