package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if len(id1.String()) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id1.String()))
	}
}

func TestTypedIDGeneration(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"request", NewRequestID().String(), RequestPrefix},
		{"trace", NewTraceID().String(), TracePrefix},
		{"span", NewSpanID().String(), SpanPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix+"_") {
				t.Errorf("ID should start with '%s_', got: %s", tt.prefix, tt.id)
			}
			prefix, _, err := ParsePrefixed(tt.id)
			if err != nil {
				t.Fatalf("ParsePrefixed(%s): %v", tt.id, err)
			}
			if prefix != tt.prefix {
				t.Errorf("prefix = %s, want %s", prefix, tt.prefix)
			}
		})
	}
}

func TestParsePrefixedRejects(t *testing.T) {
	for _, in := range []string{"", "noprefix", "req_notaulid"} {
		if _, _, err := ParsePrefixed(in); err == nil {
			t.Errorf("ParsePrefixed(%q) should fail", in)
		}
	}
}

func TestInstanceID(t *testing.T) {
	a, b := NewInstanceID(), NewInstanceID()
	if a == b {
		t.Error("instance IDs should be unique")
	}
	if !IsInstanceID(a.String()) {
		t.Errorf("%s should be a valid instance ID", a)
	}
	if IsInstanceID("req_01HZ") {
		t.Error("request ID is not an instance ID")
	}
}

func TestDeterministicEntropy(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()
	b := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()

	if !bytes.Equal(a.Entropy(), b.Entropy()) {
		t.Error("same entropy source should yield same random component")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := gen.GenerateString()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}
