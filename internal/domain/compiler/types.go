package compiler

import (
	"errors"
	"fmt"
)

// MaxSourceBytes caps the size of a compile request.
const MaxSourceBytes = 100 * 1024

// ErrSourceTooLong is returned for sources over MaxSourceBytes.
var ErrSourceTooLong = errors.New("source too long")

// Kind classifies a diagnostic.
type Kind string

const (
	KindParseError            Kind = "ParseError"
	KindUnsupportedDependency Kind = "UnsupportedDependency"
	KindUndefinedIdentifier   Kind = "UndefinedIdentifier"
)

// Diagnostic is a single compiler finding anchored to the original source.
// Line and Column are 1-based.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// String renders the diagnostic the way it is shown to the model.
func (d Diagnostic) String() string {
	switch d.Kind {
	case KindUndefinedIdentifier:
		return fmt.Sprintf("Line %d, Col %d: '%s' is not defined", d.Line, d.Column, d.Name)
	case KindUnsupportedDependency:
		return fmt.Sprintf("Line %d, Col %d: unsupported dependency '%s'", d.Line, d.Column, d.Name)
	default:
		return fmt.Sprintf("Line %d, Col %d: %s", d.Line, d.Column, d.Message)
	}
}

// Result is the outcome of a compile. Executable is set iff Success; a failed
// result carries at least one diagnostic.
type Result struct {
	Success     bool         `json:"success"`
	Executable  string       `json:"code,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Error renders the diagnostics together with their remediation text.
func (r Result) Error() string {
	if r.Success {
		return ""
	}
	return RenderReport(r.Diagnostics)
}

// Kind returns the kind shared by the result's diagnostics. Stages fail
// independently, so a failed result never mixes kinds.
func (r Result) Kind() Kind {
	if len(r.Diagnostics) == 0 {
		return ""
	}
	return r.Diagnostics[0].Kind
}

func failed(diags []Diagnostic) Result {
	return Result{Success: false, Diagnostics: diags}
}

type diagKey struct {
	name         string
	line, column int
}

// dedupe drops repeated (name, line, column) triples, keeping first-seen order.
func dedupe(diags []Diagnostic) []Diagnostic {
	seen := make(map[diagKey]struct{}, len(diags))
	out := diags[:0]
	for _, d := range diags {
		k := diagKey{d.Name, d.Line, d.Column}
		if d.Name == "" {
			k.name = d.Message
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
