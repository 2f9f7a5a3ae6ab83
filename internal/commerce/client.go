package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultAPIVersion  = "2024-04"
	defaultTimeout     = 8 * time.Second
	defaultConcurrency = 4
	maxErrorBody       = 4 << 10
	metricNamespace    = "github.com/strideline/storefront/internal/commerce"
	accessTokenHeader  = "X-Shopify-Storefront-Access-Token"
)

var tracer = otel.Tracer(metricNamespace)

var (
	// ErrNotConfigured indicates the client has no store endpoint.
	ErrNotConfigured = errors.New("commerce: client not configured")
	// ErrNotFound indicates the requested product does not exist in the store.
	ErrNotFound = errors.New("commerce: not found")
)

// GraphQLError carries the messages of a response whose errors array was non-empty.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "commerce: graphql: " + strings.Join(e.Messages, "; ")
}

// StatusError reports a non-2xx response from the storefront API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("commerce: status %d: %s", e.Status, e.Body)
}

// Client issues GraphQL requests against the commerce storefront API.
type Client struct {
	endpoint    string
	token       string
	http        *http.Client
	logger      *zap.Logger
	concurrency int

	batchFailures metric.Int64Counter
	metricsOK     bool
}

type clientConfig struct {
	storeDomain string
	apiVersion  string
	token       string
	endpoint    string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
	meter       metric.Meter
	concurrency int
}

// Option customises Client construction.
type Option func(*clientConfig)

// WithStore sets the store domain and storefront access token.
func WithStore(domain, token string) Option {
	return func(cfg *clientConfig) {
		cfg.storeDomain = strings.TrimSpace(domain)
		cfg.token = strings.TrimSpace(token)
	}
}

// WithAPIVersion pins the dated storefront API version.
func WithAPIVersion(version string) Option {
	return func(cfg *clientConfig) {
		if v := strings.TrimSpace(version); v != "" {
			cfg.apiVersion = v
		}
	}
}

// WithEndpoint overrides the derived GraphQL endpoint, primarily for tests.
func WithEndpoint(endpoint string) Option {
	return func(cfg *clientConfig) {
		cfg.endpoint = strings.TrimSpace(endpoint)
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithHTTPClient injects a preconfigured HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *clientConfig) {
		cfg.meter = m
	}
}

// WithConcurrency bounds the number of batch requests in flight per call.
func WithConcurrency(n int) Option {
	return func(cfg *clientConfig) {
		if n > 0 {
			cfg.concurrency = n
		}
	}
}

// NewClient constructs a commerce client.
func NewClient(opts ...Option) *Client {
	cfg := clientConfig{
		apiVersion:  defaultAPIVersion,
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	endpoint := cfg.endpoint
	if endpoint == "" && cfg.storeDomain != "" {
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", cfg.storeDomain, cfg.apiVersion)
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	failures, err := meter.Int64Counter(
		"commerce.price_batch.failures",
		metric.WithDescription("Count of storefront batch requests that failed and were skipped"),
	)
	if err != nil {
		cfg.logger.Warn("commerce: unable to register batch failure metric", zap.Error(err))
	}

	return &Client{
		endpoint:      endpoint,
		token:         cfg.token,
		http:          cfg.httpClient,
		logger:        cfg.logger.Named("commerce"),
		concurrency:   cfg.concurrency,
		batchFailures: failures,
		metricsOK:     err == nil,
	}
}

// Configured reports whether the client has an endpoint.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Do posts query with variables and decodes the data member into out.
func (c *Client) Do(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "commerce."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("graphql.operation.name", operation))

	err := c.do(ctx, query, variables, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graphql request failed")
	}
	return err
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("commerce: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("commerce: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(accessTokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("commerce: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var payload graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("commerce: decode response: %w", err)
	}
	if len(payload.Errors) > 0 {
		messages := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			messages = append(messages, e.Message)
		}
		return &GraphQLError{Messages: messages}
	}
	if out == nil || len(payload.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload.Data, out); err != nil {
		return fmt.Errorf("commerce: decode data: %w", err)
	}
	return nil
}

func (c *Client) recordBatchFailure(ctx context.Context, operation string) {
	if c.metricsOK {
		c.batchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// countryCode normalises a country for the @inContext directive; empty means the store default.
func countryCode(country string) any {
	country = strings.ToUpper(strings.TrimSpace(country))
	if len(country) != 2 {
		return nil
	}
	return country
}
