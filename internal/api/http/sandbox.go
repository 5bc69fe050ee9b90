package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// previewTimeout bounds one preview including pool wait
const previewTimeout = 15 * time.Second

// PreviewResponse is returned by POST /api/preview
type PreviewResponse struct {
	Success  bool               `json:"success"`
	Message  sandbox.Message    `json:"message"`
	Markup   string             `json:"markup,omitempty"`
	Console  []sandbox.LogEntry `json:"console,omitempty"`
	Duration float64            `json:"duration_ms"`
}

// Preview handles POST /api/preview. The source is compiled and the result
// mounted in a headless frame; the sandbox message is returned as is.
func (h *Handlers) Preview(c *gin.Context) {
	if h.previewer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "preview is disabled"})
		return
	}

	src, status, msg := readSource(c)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	res, err := h.compiler.CompileSource(src)
	if errors.Is(err, compiler.ErrSourceTooLong) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgCodeTooLong})
		return
	}
	if err != nil || !res.Success {
		c.JSON(http.StatusUnprocessableEntity, CompileResponse{Error: res.Error(), Diagnostics: res.Diagnostics})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), previewTimeout)
	defer cancel()

	out, err := h.previewer.Preview(ctx, res.Executable)
	if err != nil {
		h.logger.Warn("Preview failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sandbox.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PreviewResponse{
		Success:  out.OK(),
		Message:  out.Message,
		Markup:   out.Markup,
		Console:  out.Console,
		Duration: float64(out.Duration) / float64(time.Millisecond),
	})
}
