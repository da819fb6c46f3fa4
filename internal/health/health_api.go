// Package health's API type defines the thin-delegation boundary between the
// HTTP transport and the actual health computation.
package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/cake-lab/arflow-go/internal/registry"
)

// Status is the overall health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Response is the basic /health payload.
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// DetailedResponse is the /health/detailed payload.
type DetailedResponse struct {
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Uptime         string    `json:"uptime"`
	ActiveSessions int       `json:"active_sessions"`
	GoroutineCount int       `json:"goroutine_count"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
}

// ReadinessResponse is the /ready payload.
type ReadinessResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// LivenessResponse is the /alive payload.
type LivenessResponse struct {
	Alive     bool      `json:"alive"`
	Timestamp time.Time `json:"timestamp"`
}

// API is the interface the HTTP server delegates to; it never computes
// status itself.
type API interface {
	GetHealth(ctx context.Context) (*Response, error)
	GetDetailedHealth(ctx context.Context) (*DetailedResponse, error)
	IsReady(ctx context.Context) (*ReadinessResponse, error)
	IsAlive(ctx context.Context) (*LivenessResponse, error)
}

// Monitor is the default API implementation: it always reports ready and
// alive without querying the registry, and degraded never applies since the
// ingestion core has no dependent external services to report on.
type Monitor struct {
	startTime time.Time
	registry  *registry.Registry
	pid       int32
}

// NewMonitor wraps reg for liveness/readiness/metrics reporting.
func NewMonitor(reg *registry.Registry) *Monitor {
	return &Monitor{startTime: time.Now(), registry: reg, pid: int32(os.Getpid())}
}

func (m *Monitor) GetHealth(ctx context.Context) (*Response, error) {
	return &Response{Status: StatusHealthy, Timestamp: time.Now(), Uptime: time.Since(m.startTime).String()}, nil
}

func (m *Monitor) GetDetailedHealth(ctx context.Context) (*DetailedResponse, error) {
	var rss uint64
	if proc, err := process.NewProcess(m.pid); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			rss = info.RSS
		}
	}
	return &DetailedResponse{
		Status:         StatusHealthy,
		Timestamp:      time.Now(),
		Uptime:         time.Since(m.startTime).String(),
		ActiveSessions: len(m.registry.List()),
		GoroutineCount: runtime.NumGoroutine(),
		MemoryRSSBytes: rss,
	}, nil
}

func (m *Monitor) IsReady(ctx context.Context) (*ReadinessResponse, error) {
	return &ReadinessResponse{Ready: true, Timestamp: time.Now()}, nil
}

func (m *Monitor) IsAlive(ctx context.Context) (*LivenessResponse, error) {
	return &LivenessResponse{Alive: true, Timestamp: time.Now()}, nil
}
