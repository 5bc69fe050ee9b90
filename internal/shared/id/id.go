// Package id generates the identifiers used across the backend.
//
// Request, trace and span IDs are prefixed ULIDs: lexicographically
// sortable by creation time and readable in logs (req_01HZ..., trc_01HZ...).
// Sandbox instance IDs are random UUIDs because they are compared for
// equality only and never sorted.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID identifies one generation or compile request
type RequestID string

// TraceID identifies a trace
type TraceID string

// SpanID identifies a span within a trace
type SpanID string

// InstanceID identifies one sandbox frame instance
type InstanceID string

const (
	RequestPrefix = "req"
	TracePrefix   = "trc"
	SpanPrefix    = "spn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic IDs.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

// NewInstanceID generates a random sandbox instance ID
func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

func (id RequestID) String() string  { return string(id) }
func (id TraceID) String() string    { return string(id) }
func (id SpanID) String() string     { return string(id) }
func (id InstanceID) String() string { return string(id) }

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// ParsePrefixed splits a prefixed ID and parses its ULID part
func ParsePrefixed(id string) (prefix string, value ulid.ULID, err error) {
	prefix, raw, ok := strings.Cut(id, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", id)
	}
	value, err = ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	return prefix, value, nil
}

// IsInstanceID reports whether s is a well-formed sandbox instance ID
func IsInstanceID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
