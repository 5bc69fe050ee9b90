package http

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// codePreviewLen bounds the source echoed into error logs
const codePreviewLen = 500

// RuntimeErrorReport is posted by the chat UI when the sandbox reports an
// executionError. The flat fields are accepted from older clients.
type RuntimeErrorReport struct {
	Error *struct {
		Message string `json:"message"`
		Stack   string `json:"stack"`
	} `json:"error"`
	Code string `json:"code"`

	Type      string `json:"type"`
	Message   string `json:"message"`
	Stack     string `json:"stack"`
	Source    string `json:"source"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Timestamp string `json:"timestamp"`
}

// CompileErrorReport is posted by the chat UI when compiling failed on its side
type CompileErrorReport struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	ProcessedCode string `json:"processedCode"`
}

// UILogEntry represents a log entry from the UI
type UILogEntry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// UILogStreamRequest represents a batch of logs from the UI
type UILogStreamRequest struct {
	Source  string       `json:"source"`
	Entries []UILogEntry `json:"entries"`
}

// LogRuntimeError handles POST /api/log/runtime-error
func (h *Handlers) LogRuntimeError(c *gin.Context) {
	var req RuntimeErrorReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid log request format"})
		return
	}

	message, stack := req.Message, req.Stack
	if req.Error != nil {
		message, stack = req.Error.Message, req.Error.Stack
	}
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "error message is required"})
		return
	}

	h.logger.Warn("Sandbox runtime error",
		zap.String("source", "ui"),
		zap.String("message", message),
		zap.String("stack", stack),
		zap.String("type", req.Type),
		zap.String("script", req.Source),
		zap.Int("line", req.Line),
		zap.Int("column", req.Column),
		zap.String("ui_timestamp", req.Timestamp),
		zap.String("code_preview", preview(req.Code)))

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LogCompileError handles POST /api/log/compile-error
func (h *Handlers) LogCompileError(c *gin.Context) {
	var req CompileErrorReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid log request format"})
		return
	}
	if req.Error == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "error is required"})
		return
	}

	h.logger.Warn("Client compile error",
		zap.String("source", "ui"),
		zap.String("error", req.Error),
		zap.String("code_preview", preview(req.Code)),
		zap.Int("processed_size", len(req.ProcessedCode)))

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StreamLogs handles POST /api/logs, a batch of UI log entries
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req UILogStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log request format"})
		return
	}
	if req.Source != "ui" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log source"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No log entries provided"})
		return
	}

	for _, entry := range req.Entries {
		h.logUIEntry(entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func (h *Handlers) logUIEntry(entry UILogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("ui_log_id", entry.ID),
		zap.String("source", "ui"),
		zap.String("ui_timestamp", entry.Timestamp),
	)

	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		h.logger.Error(entry.Message, fields...)
	case "warn":
		h.logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		h.logger.Debug(entry.Message, fields...)
	default:
		h.logger.Info(entry.Message, fields...)
	}
}

// preview truncates code on a rune boundary
func preview(code string) string {
	if len(code) <= codePreviewLen {
		return code
	}
	cut := codePreviewLen
	for cut > 0 && !utf8.RuneStart(code[cut]) {
		cut--
	}
	return code[:cut] + "..."
}
