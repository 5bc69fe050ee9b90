package http

import (
	"context"
	"net/http"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root and health endpoints
const Version = "0.3.0"

// Generator runs the generate/fix loop for one request
type Generator interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
}

// SourceCompiler compiles with the size cap enforced
type SourceCompiler interface {
	CompileSource(src string) (compiler.Result, error)
}

// Previewer runs an executable in a headless frame
type Previewer interface {
	Preview(ctx context.Context, code string) (*sandbox.PreviewResult, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	generator Generator
	compiler  SourceCompiler
	previewer Previewer
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	page      []byte
}

// NewHandlers creates a new handler set
func NewHandlers(generator Generator, compiler SourceCompiler, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		generator: generator,
		compiler:  compiler,
		logger:    logger,
		page:      sandbox.Page(),
	}
}

// WithPreviewer enables POST /api/preview
func (h *Handlers) WithPreviewer(p Previewer) *Handlers {
	h.previewer = p
	return h
}

// WithMetrics adds the metrics snapshot to the health response
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// Root handles GET /
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "ConceptCanvas",
		"version": Version,
	})
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"version": Version,
		"preview": h.previewer != nil,
	}
	if h.metrics != nil {
		s := h.metrics.Snapshot()
		resp["uptime_seconds"] = s.UptimeSeconds
		resp["active_sandboxes"] = s.ActiveSandboxes
	}
	c.JSON(http.StatusOK, resp)
}

// sandboxPolicy gives the page an opaque origin however it is loaded, so
// generated code never sees the API's cookies or storage.
const sandboxPolicy = "sandbox allow-scripts"

// SandboxPage serves the static host page loaded by sandbox iframes
func (h *Handlers) SandboxPage(c *gin.Context) {
	c.Header("Content-Security-Policy", sandboxPolicy)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", h.page)
}
