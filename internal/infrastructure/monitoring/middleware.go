package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Use the route template so path parameters don't explode cardinality
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Handler exposes the private registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Timer measures model call duration
type Timer struct {
	start     time.Time
	metrics   *Metrics
	operation string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		operation: operation,
	}
}

// Stop stops the timer and records the duration. A nil metrics is a no-op.
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordModelCall(t.operation, status, time.Since(t.start))
}
