package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultAPIVersion = "2023-05-03"
	defaultTimeout    = 8 * time.Second
	maxErrorBody      = 4 << 10
	defaultCacheSize  = 1024
)

var tracer = otel.Tracer("github.com/strideline/storefront/internal/cms")

// ErrNotConfigured is returned when the client has no project to query.
var ErrNotConfigured = errors.New("cms: client not configured")

// StatusError reports a non-2xx response from the query API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cms: query status %d", e.Status)
	}
	return fmt.Sprintf("cms: query status %d: %s", e.Status, e.Body)
}

// Client runs read-only queries against the headless CMS query endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger

	// nil when caching is disabled
	cache *expirable.LRU[string, json.RawMessage]
}

type clientConfig struct {
	projectID  string
	dataset    string
	apiVersion string
	token      string
	useCDN     bool
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	cacheTTL   time.Duration
	cacheSize  int
}

// Option customises Client construction.
type Option func(*clientConfig)

// WithProject selects the CMS project and dataset.
func WithProject(projectID, dataset string) Option {
	return func(cfg *clientConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
		cfg.dataset = strings.TrimSpace(dataset)
	}
}

// WithAPIVersion pins the dated query API version.
func WithAPIVersion(version string) Option {
	return func(cfg *clientConfig) {
		if v := strings.TrimPrefix(strings.TrimSpace(version), "v"); v != "" {
			cfg.apiVersion = v
		}
	}
}

// WithToken authenticates queries against private datasets.
func WithToken(token string) Option {
	return func(cfg *clientConfig) {
		cfg.token = strings.TrimSpace(token)
	}
}

// WithCDN routes queries through the cached API edge.
func WithCDN(enabled bool) Option {
	return func(cfg *clientConfig) {
		cfg.useCDN = enabled
	}
}

// WithBaseURL overrides the derived endpoint, primarily for tests.
func WithBaseURL(base string) Option {
	return func(cfg *clientConfig) {
		cfg.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
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

// WithCacheTTL enables a short-lived in-process result cache. Zero disables it.
func WithCacheTTL(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.cacheTTL = d
	}
}

// WithCacheSize caps how many query results the cache holds; the least recently used are dropped
// first. Defaults to 1024.
func WithCacheSize(n int) Option {
	return func(cfg *clientConfig) {
		if n > 0 {
			cfg.cacheSize = n
		}
	}
}

// NewClient constructs a Client. A client without project and base URL reports ErrNotConfigured on every query.
func NewClient(opts ...Option) *Client {
	cfg := clientConfig{
		apiVersion: defaultAPIVersion,
		timeout:    defaultTimeout,
		cacheSize:  defaultCacheSize,
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

	base := cfg.baseURL
	if base == "" && cfg.projectID != "" && cfg.dataset != "" {
		host := "api.sanity.io"
		if cfg.useCDN && cfg.token == "" {
			host = "apicdn.sanity.io"
		}
		base = fmt.Sprintf("https://%s.%s/v%s/data/query/%s", cfg.projectID, host, cfg.apiVersion, url.PathEscape(cfg.dataset))
	}

	client := &Client{
		baseURL: base,
		token:   cfg.token,
		http:    cfg.httpClient,
		logger:  cfg.logger.Named("cms"),
	}
	if cfg.cacheTTL > 0 {
		client.cache = expirable.NewLRU[string, json.RawMessage](cfg.cacheSize, nil, cfg.cacheTTL)
	}
	return client
}

// Configured reports whether the client has an endpoint to query.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Query executes a GROQ query with params and decodes the "result" member into out.
func (c *Client) Query(ctx context.Context, query string, params map[string]any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	endpoint, err := c.endpoint(query, params)
	if err != nil {
		return err
	}

	if raw, ok := c.cached(endpoint); ok {
		return decodeResult(raw, out)
	}

	ctx, span := tracer.Start(ctx, "cms.query", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("cms.query.length", len(query)), attribute.Int("cms.query.params", len(params)))

	raw, err := c.do(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return err
	}
	c.store(endpoint, raw)
	return decodeResult(raw, out)
}

func (c *Client) do(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cms: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cms: query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("cms: decode response: %w", err)
	}
	return envelope.Result, nil
}

// endpoint encodes params as JSON under $-prefixed keys, the query API's variable syntax.
func (c *Client) endpoint(query string, params map[string]any) (string, error) {
	values := url.Values{}
	values.Set("query", query)

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		encoded, err := json.Marshal(params[key])
		if err != nil {
			return "", fmt.Errorf("cms: encode param %q: %w", key, err)
		}
		values.Set("$"+strings.TrimPrefix(key, "$"), string(encoded))
	}
	return c.baseURL + "?" + values.Encode(), nil
}

func (c *Client) cached(key string) (json.RawMessage, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) store(key string, raw json.RawMessage) {
	if c.cache != nil {
		c.cache.Add(key, raw)
	}
}

// Purge drops every cached result.
func (c *Client) Purge() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Purge()
}

func decodeResult(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cms: decode result: %w", err)
	}
	return nil
}
