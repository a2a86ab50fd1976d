package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// WithHealthSystemService wires the readiness probe to the system service.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the build metadata reported by the probes.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the time source, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.clock = clock
	}
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type readyzCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readyzResponse struct {
	Status      string                        `json:"status"`
	Checks      map[string]readyzCheckPayload `json:"checks"`
	Details     []string                      `json:"details"`
	Version     string                        `json:"version,omitempty"`
	CommitSHA   string                        `json:"commitSha,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	GeneratedAt string                        `json:"generatedAt,omitempty"`
}

// Healthz reports process liveness without touching any dependency.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := healthzResponse{
		Status:      string(domain.HealthStatusOK),
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Timestamp:   now.Format(time.RFC3339Nano),
	}
	if !h.build.StartedAt.IsZero() {
		payload.Uptime = now.Sub(h.build.StartedAt).String()
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz probes the registered dependencies and reports 503 until all pass.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:  string(domain.HealthStatusError),
			Checks:  map[string]readyzCheckPayload{},
			Details: []string{err.Error()},
		})
		return
	}

	payload := readyzResponse{
		Status:      string(report.Status),
		Checks:      make(map[string]readyzCheckPayload, len(report.Checks)),
		Details:     make([]string, 0),
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.String()
	}
	if !report.GeneratedAt.IsZero() {
		payload.GeneratedAt = report.GeneratedAt.UTC().Format(time.RFC3339Nano)
	}

	for name, check := range report.Checks {
		entry := readyzCheckPayload{
			Status:    string(check.Status),
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
		if !check.CheckedAt.IsZero() {
			entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339Nano)
		}
		payload.Checks[name] = entry
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			payload.Details = append(payload.Details, fmt.Sprintf("%s: %s", name, check.Error))
		}
	}
	sort.Strings(payload.Details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
