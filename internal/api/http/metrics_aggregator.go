package http

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
)

// StatsFunc reports the current state of one component
type StatsFunc func() any

// MetricsAggregator serves GET /metrics/json: counters, recent latency
// distributions and component stats
type MetricsAggregator struct {
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	sources map[string]StatsFunc
}

// NewMetricsAggregator creates an aggregator over metrics
func NewMetricsAggregator(metrics *monitoring.Metrics) *MetricsAggregator {
	return &MetricsAggregator{
		metrics: metrics,
		sources: make(map[string]StatsFunc),
	}
}

// AddSource registers a component reported under name
func (ma *MetricsAggregator) AddSource(name string, fn StatsFunc) *MetricsAggregator {
	ma.mu.Lock()
	ma.sources[name] = fn
	ma.mu.Unlock()
	return ma
}

// MetricsSnapshot represents a snapshot of all metrics
type MetricsSnapshot struct {
	Timestamp  time.Time                            `json:"timestamp"`
	Summary    MetricsSummary                       `json:"summary"`
	Latency    map[string]monitoring.LatencySummary `json:"latency"`
	Components map[string]any                       `json:"components,omitempty"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests         int64   `json:"total_requests"`
	ErrorRate             float64 `json:"error_rate"`
	TotalCompiles         int64   `json:"total_compiles"`
	CompileSuccessRate    float64 `json:"compile_success_rate"`
	TotalGenerations      int64   `json:"total_generations"`
	GenerationSuccessRate float64 `json:"generation_success_rate"`
	ActiveSandboxes       int64   `json:"active_sandboxes"`
	ActiveConnections     int64   `json:"active_connections"`
	UptimeSeconds         float64 `json:"uptime_seconds"`
}

// GetAggregatedMetrics handles GET /metrics/json
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, ma.Snapshot())
}

// Snapshot collects the current metrics
func (ma *MetricsAggregator) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Timestamp: time.Now(),
		Summary:   ma.summary(),
		Latency: map[string]monitoring.LatencySummary{
			monitoring.SeriesHTTP:       ma.metrics.Latency(monitoring.SeriesHTTP),
			monitoring.SeriesCompile:    ma.metrics.Latency(monitoring.SeriesCompile),
			monitoring.SeriesGeneration: ma.metrics.Latency(monitoring.SeriesGeneration),
		},
	}

	ma.mu.RLock()
	names := make([]string, 0, len(ma.sources))
	for name := range ma.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		snap.Components = make(map[string]any, len(names))
		for _, name := range names {
			snap.Components[name] = ma.sources[name]()
		}
	}
	ma.mu.RUnlock()

	return snap
}

func (ma *MetricsAggregator) summary() MetricsSummary {
	s := ma.metrics.Snapshot()
	return MetricsSummary{
		TotalRequests:         s.TotalRequests,
		ErrorRate:             ratio(s.TotalErrors, s.TotalRequests),
		TotalCompiles:         s.TotalCompiles,
		CompileSuccessRate:    successRate(s.FailedCompiles, s.TotalCompiles),
		TotalGenerations:      s.TotalGenerations,
		GenerationSuccessRate: successRate(s.FailedGenerations, s.TotalGenerations),
		ActiveSandboxes:       s.ActiveSandboxes,
		ActiveConnections:     s.ActiveConnections,
		UptimeSeconds:         s.UptimeSeconds,
	}
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func successRate(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 1 - ratio(failed, total)
}
