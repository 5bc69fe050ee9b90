package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"go.uber.org/zap"
)

// Propagation headers
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// spanBuffer bounds spans waiting for the collector
const spanBuffer = 1000

// Span represents a single operation in a trace
type Span struct {
	TraceID    id.TraceID
	SpanID     id.SpanID
	ParentID   id.SpanID
	Name       string
	Service    string
	StartTime  time.Time
	Duration   time.Duration
	Tags       map[string]string
	Error      error
	StatusCode int
}

// Tracer collects finished spans and logs them through zap
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New creates a tracer and starts its collector. Close stops it.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
	}

	go t.collect()

	return t
}

// StartSpan creates a span that continues the trace found in ctx, or starts
// a new trace
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = id.NewTraceID()
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    id.NewSpanID(),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, spanIDKey, span.SpanID)

	return span, newCtx
}

// Finish records the span duration
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.Error = err
	if s.StatusCode == 0 {
		s.StatusCode = 500
	}
}

// SetStatus sets the status code
func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

// End finishes the span and submits it
func (t *Tracer) End(span *Span) {
	span.Finish()
	t.Submit(span)
}

// Submit sends a finished span to the collector. Spans submitted after
// Close or while the buffer is full are dropped.
func (t *Tracer) Submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("span_id", span.SpanID.String()),
		)
	}
}

// Close drains pending spans and stops the collector
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.spans)
		t.mu.Unlock()
		<-t.done
	})
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.process(span)
	}
}

func (t *Tracer) process(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	if span.StatusCode != 0 {
		fields = append(fields, zap.Int("status", span.StatusCode))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Error("span completed with error", fields...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithRemoteParent seeds ctx with a trace context received from a peer
func WithRemoteParent(ctx context.Context, traceID id.TraceID, parentID id.SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if parentID != "" {
		ctx = context.WithValue(ctx, spanIDKey, parentID)
	}
	return ctx
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) id.TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(id.TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) id.SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(id.SpanID); ok {
		return spanID
	}
	return ""
}
