package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several can coexist in one process (tests, embedded servers).
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Compiler metrics
	Compiles        *prometheus.CounterVec
	CompileDuration prometheus.Histogram
	Diagnostics     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec

	// Orchestrator metrics
	Generations        *prometheus.CounterVec
	GenerationAttempts prometheus.Histogram
	ModelCalls         *prometheus.CounterVec
	ModelDuration      *prometheus.HistogramVec

	// Sandbox metrics
	SandboxInstances prometheus.Gauge
	SandboxMessages  *prometheus.CounterVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	samples  map[string]*window

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	TotalCompiles     int64
	FailedCompiles    int64
	TotalGenerations  int64
	FailedGenerations int64
	ActiveSandboxes   int64
	ActiveConnections int64
	UptimeSeconds     float64
}

// NewMetrics creates a new metrics collector on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		Registry:  reg,
		startTime: time.Now(),
		samples:   make(map[string]*window),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Compiler metrics
		Compiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_compiles_total",
				Help: "Total number of compiles by outcome",
			},
			[]string{"outcome"},
		),
		CompileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canvas_compile_duration_seconds",
				Help:    "Compile duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
		),
		Diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_compile_diagnostics_total",
				Help: "Total number of compiler diagnostics by kind",
			},
			[]string{"kind"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_compile_cache_lookups_total",
				Help: "Compile cache lookups by result",
			},
			[]string{"result"},
		),

		// Orchestrator metrics
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_generations_total",
				Help: "Total number of generation requests by outcome",
			},
			[]string{"outcome"},
		),
		GenerationAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canvas_generation_attempts",
				Help:    "Attempts used per generation request",
				Buckets: []float64{1, 2, 3, 4, 5, 6},
			},
		),
		ModelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_model_calls_total",
				Help: "Total number of model calls",
			},
			[]string{"operation", "status"},
		),
		ModelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_model_duration_seconds",
				Help:    "Model call duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"operation"},
		),

		// Sandbox metrics
		SandboxInstances: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canvas_sandbox_instances",
				Help: "Number of live sandbox instances",
			},
		),
		SandboxMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_sandbox_messages_total",
				Help: "Sandbox messages by type and disposition",
			},
			[]string{"type", "disposition"},
		),

		// gRPC metrics
		GRPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_grpc_calls_total",
				Help: "Total number of gRPC calls",
			},
			[]string{"method", "code"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_grpc_duration_seconds",
				Help:    "gRPC call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canvas_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "canvas_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.sample(SeriesHTTP, duration)
	m.mu.Unlock()
}

// RecordCompile records one compile and its diagnostics
func (m *Metrics) RecordCompile(success bool, kind string, diagnostics int, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failed"
		m.Diagnostics.WithLabelValues(kind).Add(float64(diagnostics))
	}
	m.Compiles.WithLabelValues(outcome).Inc()
	m.CompileDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCompiles++
	if !success {
		m.snapshot.FailedCompiles++
	}
	m.sample(SeriesCompile, duration)
	m.mu.Unlock()
}

// RecordCacheLookup records a compile cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordGeneration records the final outcome of a generation request
func (m *Metrics) RecordGeneration(outcome string, attempts int, duration time.Duration) {
	m.Generations.WithLabelValues(outcome).Inc()
	m.GenerationAttempts.Observe(float64(attempts))

	m.mu.Lock()
	m.snapshot.TotalGenerations++
	if outcome != "success" {
		m.snapshot.FailedGenerations++
	}
	m.sample(SeriesGeneration, duration)
	m.mu.Unlock()
}

// RecordModelCall records a call to the model provider
func (m *Metrics) RecordModelCall(operation, status string, duration time.Duration) {
	m.ModelCalls.WithLabelValues(operation, status).Inc()
	m.ModelDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSandboxMessage records a message received from a sandbox frame
func (m *Metrics) RecordSandboxMessage(msgType string, accepted bool) {
	disposition := "accepted"
	if !accepted {
		disposition = "discarded"
	}
	m.SandboxMessages.WithLabelValues(msgType, disposition).Inc()
}

// IncSandboxInstances increments live sandbox instances
func (m *Metrics) IncSandboxInstances() {
	m.SandboxInstances.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSandboxes++
	m.mu.Unlock()
}

// DecSandboxInstances decrements live sandbox instances
func (m *Metrics) DecSandboxInstances() {
	m.SandboxInstances.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSandboxes--
	m.mu.Unlock()
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, code string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
