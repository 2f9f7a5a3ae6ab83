package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger without a request logger")
	}
	if Logger(WithLogger(context.Background(), nil)) != NoopLogger() {
		t.Fatalf("expected nil logger to store the noop logger")
	}
}

func TestMarketAndBrowserTagLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithMarket(ctx, Market{Locale: "en-dk", Country: "DK"})
	ctx = WithBrowser(ctx, "01HZX3T3M0C8ZJ5Q6V7W8X9Y0Z")

	m, ok := MarketFrom(ctx)
	if !ok || m.Country != "DK" {
		t.Fatalf("unexpected market %+v", m)
	}
	if Browser(ctx) != "01HZX3T3M0C8ZJ5Q6V7W8X9Y0Z" {
		t.Fatalf("unexpected browser %q", Browser(ctx))
	}

	Logger(ctx).Info("cart updated")
	fields := logs.All()[0].ContextMap()
	if fields["locale"] != "en-dk" || fields["country"] != "DK" || fields["browser"] != "01HZX3T3M0C8ZJ5Q6V7W8X9Y0Z" {
		t.Fatalf("expected request fields on log entry, got %v", fields)
	}
}

func TestMarketWithoutLocaleIsAbsent(t *testing.T) {
	if _, ok := MarketFrom(WithMarket(context.Background(), Market{Country: "SE"})); ok {
		t.Fatalf("expected a market without locale to be ignored")
	}
	if _, ok := Trace(context.Background()); ok {
		t.Fatalf("expected no trace info")
	}
	if TraceID(WithTrace(context.Background(), TraceInfo{TraceID: "abc"})) != "abc" {
		t.Fatalf("expected stored trace id")
	}
}
