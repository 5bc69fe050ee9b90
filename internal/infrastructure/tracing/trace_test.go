package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newObserved() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestSpanParenting(t *testing.T) {
	tracer, _ := newObserved()
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Equal(t, parent.TraceID, GetTraceID(childCtx))
}

func TestCloseDrainsSpans(t *testing.T) {
	tracer, logs := newObserved()

	ok, _ := tracer.StartSpan(context.Background(), "ok")
	tracer.End(ok)

	failed, _ := tracer.StartSpan(context.Background(), "failed")
	failed.SetError(errors.New("boom"))
	tracer.End(failed)

	tracer.Close()
	tracer.Close()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("span completed with error").Len())

	// after close
	late, _ := tracer.StartSpan(context.Background(), "late")
	tracer.End(late)
	assert.Equal(t, 2, logs.Len())
}

func TestHTTPMiddlewarePropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObserved()

	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context()).String()
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderTraceID, "trc_upstream")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	tracer.Close()

	assert.Equal(t, "trc_upstream", seen)
	assert.Equal(t, "trc_upstream", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "418", entries[0].ContextMap()["http.status"])
	assert.Equal(t, "/ping", entries[0].ContextMap()["operation"])
}
