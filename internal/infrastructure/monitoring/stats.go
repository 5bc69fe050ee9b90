package monitoring

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Latency series tracked for the JSON metrics API
const (
	SeriesHTTP       = "http"
	SeriesCompile    = "compile"
	SeriesGeneration = "generation"
)

// windowSize bounds the samples kept per series
const windowSize = 512

// window is a fixed-size ring of duration samples in milliseconds
type window struct {
	values []float64
	next   int
}

func (w *window) add(v float64) {
	if len(w.values) < windowSize {
		w.values = append(w.values, v)
		return
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % windowSize
}

// sample must be called with mu held
func (m *Metrics) sample(series string, d time.Duration) {
	w, ok := m.samples[series]
	if !ok {
		w = &window{}
		m.samples[series] = w
	}
	w.add(float64(d) / float64(time.Millisecond))
}

// LatencySummary describes recent latencies of one series in milliseconds
type LatencySummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	Max    float64 `json:"max_ms"`
}

// Latency summarizes the recent samples of a series using gonum
func (m *Metrics) Latency(series string) LatencySummary {
	m.mu.RLock()
	w, ok := m.samples[series]
	var values []float64
	if ok {
		values = make([]float64, len(w.values))
		copy(values, w.values)
	}
	m.mu.RUnlock()

	return summarize(values)
}

func summarize(values []float64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sort.Float64s(values)

	s := LatencySummary{
		Count: len(values),
		Mean:  stat.Mean(values, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, values, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, values, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, values, nil),
		Max:   values[len(values)-1],
	}
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s
}
