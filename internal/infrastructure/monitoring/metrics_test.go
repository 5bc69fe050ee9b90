package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// two collectors in one process must not panic on duplicate registration
	a := NewMetrics()
	b := NewMetrics()

	a.RecordCompile(true, "", 0, time.Millisecond)
	assert.Equal(t, int64(1), a.Snapshot().TotalCompiles)
	assert.Equal(t, int64(0), b.Snapshot().TotalCompiles)
}

func TestRecordCompileCountsFailures(t *testing.T) {
	m := NewMetrics()
	m.RecordCompile(true, "", 0, 2*time.Millisecond)
	m.RecordCompile(false, "UndefinedIdentifier", 3, 4*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalCompiles)
	assert.Equal(t, int64(1), snap.FailedCompiles)

	summary := m.Latency(SeriesCompile)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 3.0, summary.Mean, 0.001)
	assert.InDelta(t, 4.0, summary.Max, 0.001)
}

func TestLatencyEmptySeries(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, LatencySummary{}, m.Latency(SeriesGeneration))
}

func TestWindowWrapsAround(t *testing.T) {
	w := &window{}
	for i := 0; i < windowSize+10; i++ {
		w.add(float64(i))
	}
	assert.Len(t, w.values, windowSize)
	assert.Equal(t, float64(windowSize), w.values[0])
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordGeneration("success", 2, time.Second)
	m.RecordSandboxMessage("executionReady", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "canvas_generations_total"))
	assert.True(t, strings.Contains(body, `canvas_sandbox_messages_total{disposition="accepted",type="executionReady"} 1`))
	assert.True(t, strings.Contains(body, "canvas_uptime_seconds"))
}
