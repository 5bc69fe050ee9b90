package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxCompileBody leaves room for JSON escaping of a source at the cap
const maxCompileBody = 6 * compiler.MaxSourceBytes

// CompileRequest is the JSON form of a compile request. A non-JSON body is
// taken as the source itself.
type CompileRequest struct {
	Code string `json:"code"`
}

// CompileResponse is returned by POST /api/compile
type CompileResponse struct {
	Success     bool                  `json:"success"`
	Code        string                `json:"code,omitempty"`
	Error       string                `json:"error,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
}

// Compile handles POST /api/compile
func (h *Handlers) Compile(c *gin.Context) {
	src, status, msg := readSource(c)
	if status != 0 {
		c.JSON(status, CompileResponse{Error: msg})
		return
	}

	res, err := h.compiler.CompileSource(src)
	if errors.Is(err, compiler.ErrSourceTooLong) {
		c.JSON(http.StatusRequestEntityTooLarge, CompileResponse{Error: msgCodeTooLong})
		return
	}
	if err != nil {
		h.logger.Error("Compile failed unexpectedly", zap.Error(err))
		c.JSON(http.StatusInternalServerError, CompileResponse{Error: "Internal server error"})
		return
	}

	if !res.Success {
		h.logger.Info("Compile rejected",
			zap.String("kind", string(res.Kind())),
			zap.Int("diagnostics", len(res.Diagnostics)),
			zap.Int("size", len(src)))
		c.JSON(http.StatusUnprocessableEntity, CompileResponse{
			Error:       res.Error(),
			Diagnostics: res.Diagnostics,
		})
		return
	}

	c.JSON(http.StatusOK, CompileResponse{Success: true, Code: res.Executable})
}

const (
	msgCodeRequired = "Invalid request: code is required"
	msgCodeTooLong  = "Code too long"
)

// readSource extracts the source from a JSON or raw body. A non-zero status
// reports a rejected request.
func readSource(c *gin.Context) (string, int, string) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCompileBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", http.StatusRequestEntityTooLarge, msgCodeTooLong
		}
		return "", http.StatusBadRequest, msgCodeRequired
	}

	src := string(body)
	if isJSON(c.ContentType(), body) {
		var req CompileRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return "", http.StatusBadRequest, msgCodeRequired
		}
		src = req.Code
	}

	if strings.TrimSpace(src) == "" {
		return "", http.StatusBadRequest, msgCodeRequired
	}
	if len(src) > compiler.MaxSourceBytes {
		return "", http.StatusRequestEntityTooLarge, msgCodeTooLong
	}
	return src, 0, ""
}

func isJSON(contentType string, body []byte) bool {
	if contentType == gin.MIMEJSON {
		return true
	}
	return contentType == "" && strings.HasPrefix(strings.TrimSpace(string(body)), "{\"")
}
