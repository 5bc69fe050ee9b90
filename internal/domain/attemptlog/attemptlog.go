// Package attemptlog records every pass of a generation request for
// diagnostics. The core only writes to it.
package attemptlog

import (
	"context"
	"sync"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Outcome of one attempt or of a whole request
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeAborted Outcome = "aborted"
)

// Attempt is one pass through the generate/fix loop. Attempts are
// append-only and immutable once recorded.
type Attempt struct {
	Number            int       `json:"attempt"`
	Timestamp         time.Time `json:"timestamp"`
	Source            string    `json:"source"`
	DiagnosticSummary string    `json:"diagnostic_summary,omitempty"`
	Outcome           Outcome   `json:"outcome"`
	DiffFromPrevious  string    `json:"diff_from_previous,omitempty"`
}

// Record is everything logged for one generation request
type Record struct {
	RequestID   string        `json:"request_id"`
	Query       string        `json:"query"`
	Profile     string        `json:"profile,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Attempts    []Attempt     `json:"attempts"`
	FinalResult Outcome       `json:"final_result"`
	Error       string        `json:"error,omitempty"`
}

// Sink receives one record per completed request. Implementations must not
// fail the request; write errors are theirs to report.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Diff renders a patch turning prev into cur. It is empty when either side
// is empty or nothing changed.
func Diff(prev, cur string) string {
	if prev == "" || prev == cur {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(prev, cur, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(prev, diffs))
}

// Nop discards records
type Nop struct{}

// Write implements Sink
func (Nop) Write(context.Context, Record) error { return nil }

// Memory keeps records in memory. Used by tests and the CLI.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

// Write implements Sink
func (m *Memory) Write(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns the records written so far
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
