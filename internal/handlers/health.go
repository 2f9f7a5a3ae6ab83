package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/strideline/storefront/internal/platform/httpx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	healthStatusError    = "error"
	defaultCheckTimeout  = 2 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	clock   func() time.Time
	checks  map[string]CheckFunc
	timeout time.Duration
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		checks:  map[string]CheckFunc{},
		timeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the reported build metadata.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthCheck registers a readiness check.
func WithHealthCheck(name string, check CheckFunc) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// Healthz reports liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      healthStatusOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.UTC().Format(time.RFC3339),
	})
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Readyz runs every registered check and answers 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := healthStatusOK
	results := make(map[string]checkResult, len(names))
	details := []string{}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		started := h.clock()
		err := h.checks[name](ctx)
		cancel()
		res := checkResult{Status: healthStatusOK, LatencyMS: h.clock().Sub(started).Milliseconds()}
		if err != nil {
			res.Status = healthStatusError
			res.Error = err.Error()
			status = healthStatusDegraded
			details = append(details, name+": "+err.Error())
		}
		results[name] = res
	}

	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, map[string]any{
		"status":      status,
		"checks":      results,
		"details":     details,
		"generatedAt": h.clock().UTC().Format(time.RFC3339),
	})
}
