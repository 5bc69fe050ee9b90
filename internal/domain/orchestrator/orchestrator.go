package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/attemptlog"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/validator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"go.uber.org/zap"
)

// DefaultMaxRetries is the number of fix attempts after the first generation
const DefaultMaxRetries = 2

// State of a request in the generate/fix loop
type State string

const (
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateCompiling  State = "compiling"
	StateFixing     State = "fixing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// StateHook observes state transitions
type StateHook func(requestID id.RequestID, attempt int, state State)

// Request is one generation request
type Request struct {
	RequestID   id.RequestID
	Messages    []Message
	CurrentCode string
}

// Outcome is a successful generation
type Outcome struct {
	RequestID   id.RequestID         `json:"request_id"`
	Source      string               `json:"source"`
	Executable  string               `json:"executable"`
	Explanation string               `json:"explanation"`
	Profile     Profile              `json:"profile"`
	Attempts    []attemptlog.Attempt `json:"attempts"`
}

// Orchestrator drives the bounded generate, validate, compile and fix loop.
// It keeps no per-request state between calls to Run.
type Orchestrator struct {
	model      Model
	validator  Validator
	compiler   Compiler
	maxRetries int

	sink    attemptlog.Sink
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	hook    StateHook
}

// New creates an orchestrator. A negative maxRetries uses DefaultMaxRetries.
func New(model Model, v Validator, c Compiler, maxRetries int) *Orchestrator {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Orchestrator{
		model:      model,
		validator:  v,
		compiler:   c,
		maxRetries: maxRetries,
		sink:       attemptlog.Nop{},
		logger:     zap.NewNop(),
	}
}

// WithSink sets where attempt records are written
func (o *Orchestrator) WithSink(sink attemptlog.Sink) *Orchestrator {
	if sink != nil {
		o.sink = sink
	}
	return o
}

// WithLogger adds logging
func (o *Orchestrator) WithLogger(logger *zap.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithMetrics adds metrics tracking
func (o *Orchestrator) WithMetrics(metrics *monitoring.Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// WithTracer adds a span per request
func (o *Orchestrator) WithTracer(tracer *tracing.Tracer) *Orchestrator {
	o.tracer = tracer
	return o
}

// WithStateHook registers a transition observer
func (o *Orchestrator) WithStateHook(hook StateHook) *Orchestrator {
	o.hook = hook
	return o
}

// MaxRetries returns the configured fix budget
func (o *Orchestrator) MaxRetries() int {
	return o.maxRetries
}

// run holds the state of one request
type run struct {
	req      Request
	record   attemptlog.Record
	previous string
}

func (r *run) append(src, summary string, outcome attemptlog.Outcome) {
	r.record.Attempts = append(r.record.Attempts, attemptlog.Attempt{
		Number:            len(r.record.Attempts),
		Timestamp:         time.Now().UTC(),
		Source:            src,
		DiagnosticSummary: summary,
		Outcome:           outcome,
		DiffFromPrevious:  attemptlog.Diff(r.previous, src),
	})
	r.previous = src
}

// Run generates a component for the conversation in req. It makes at most
// 1+MaxRetries generation calls and records one attempt per call. On budget
// exhaustion it returns a *GenerationError; on cancellation it returns
// ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	if req.RequestID == "" {
		req.RequestID = id.NewRequestID()
	}

	r := &run{
		req: req,
		record: attemptlog.Record{
			RequestID: req.RequestID.String(),
			Query:     req.Messages[len(req.Messages)-1].Content,
			StartedAt: time.Now().UTC(),
		},
	}

	if o.tracer != nil {
		var span *tracing.Span
		span, ctx = o.tracer.StartSpan(ctx, "orchestrator.run")
		span.SetTag("request_id", req.RequestID.String())
		defer func() {
			span.SetTag("attempts", strconv.Itoa(len(r.record.Attempts)))
			span.SetTag("result", string(r.record.FinalResult))
			o.tracer.End(span)
		}()
	}

	outcome, err := o.loop(ctx, r)
	if err != nil && r.record.FinalResult == "" {
		r.record.FinalResult = attemptlog.OutcomeFailed
	}
	if err != nil {
		r.record.Error = err.Error()
	}
	o.finish(ctx, r)
	return outcome, err
}

func (o *Orchestrator) loop(ctx context.Context, r *run) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, o.abort(r, err)
	}

	profile, err := o.model.Classify(ctx, r.record.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, o.abort(r, ctx.Err())
		}
		o.logger.Warn("Classification failed, using default profile",
			zap.String("request_id", r.req.RequestID.String()),
			zap.Error(err))
		profile = ProfileLively
	}
	r.record.Profile = string(profile)

	var (
		explanation  string
		instructions string
		technical    string
	)

	for n := 0; n <= o.maxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return nil, o.abort(r, err)
		}

		var raw string
		if n == 0 {
			o.transition(r, n, StateGenerating)
			completion, err := o.model.Generate(ctx, GenerateRequest{
				Messages:    r.req.Messages,
				CurrentCode: r.req.CurrentCode,
				Profile:     profile,
			})
			if err != nil {
				return nil, o.modelFailure(ctx, r, "generate", err)
			}
			raw, explanation = completion.Code, completion.Explanation
		} else {
			o.transition(r, n, StateFixing)
			fixed, err := o.model.Fix(ctx, FixRequest{
				PreviousSource: r.previous,
				Instructions:   instructions,
				Profile:        profile,
			})
			if err != nil {
				return nil, o.modelFailure(ctx, r, "fix", err)
			}
			raw = fixed
		}
		src := validator.StripFences(raw)

		if err := ctx.Err(); err != nil {
			return nil, o.abort(r, err)
		}
		o.transition(r, n, StateValidating)
		if v := o.validator.Validate(src); !v.Valid {
			technical = v.Reason
			instructions = ValidationFixPrompt(v.Reason)
			r.append(src, v.Reason, attemptlog.OutcomeFailed)
			o.logger.Debug("Attempt rejected by validator",
				zap.String("request_id", r.req.RequestID.String()),
				zap.Int("attempt", n),
				zap.String("reason", v.Reason))
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, o.abort(r, err)
		}
		o.transition(r, n, StateCompiling)
		res := o.compiler.Compile(src)
		if res.Success {
			r.append(src, "", attemptlog.OutcomeSuccess)
			r.record.FinalResult = attemptlog.OutcomeSuccess
			o.transition(r, n, StateSucceeded)
			return &Outcome{
				RequestID:   r.req.RequestID,
				Source:      src,
				Executable:  res.Executable,
				Explanation: explanation,
				Profile:     profile,
				Attempts:    r.record.Attempts,
			}, nil
		}

		technical = res.Error()
		instructions = FixPrompt(res.Diagnostics)
		r.append(src, technical, attemptlog.OutcomeFailed)
		o.logger.Debug("Attempt failed to compile",
			zap.String("request_id", r.req.RequestID.String()),
			zap.Int("attempt", n),
			zap.String("kind", string(res.Kind())),
			zap.Int("diagnostics", len(res.Diagnostics)))
	}

	o.transition(r, len(r.record.Attempts)-1, StateFailed)
	r.record.FinalResult = attemptlog.OutcomeFailed
	return nil, &GenerationError{
		Friendly:  friendlyMessage(),
		Technical: technical,
		Attempts:  r.record.Attempts,
	}
}

// modelFailure records the failed call as an attempt unless ctx ended
func (o *Orchestrator) modelFailure(ctx context.Context, r *run, op string, err error) error {
	if ctx.Err() != nil {
		return o.abort(r, ctx.Err())
	}
	r.append("", fmt.Sprintf("model %s failed: %v", op, err), attemptlog.OutcomeFailed)
	r.record.FinalResult = attemptlog.OutcomeFailed
	return fmt.Errorf("model %s: %w", op, err)
}

func (o *Orchestrator) abort(r *run, err error) error {
	r.record.FinalResult = attemptlog.OutcomeAborted
	o.logger.Info("Generation aborted",
		zap.String("request_id", r.req.RequestID.String()),
		zap.Int("attempts", len(r.record.Attempts)),
		zap.Error(err))
	return err
}

func (o *Orchestrator) transition(r *run, attempt int, s State) {
	if o.hook != nil {
		o.hook(r.req.RequestID, attempt, s)
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	r.record.Duration = time.Since(r.record.StartedAt)

	if o.metrics != nil {
		o.metrics.RecordGeneration(string(r.record.FinalResult), len(r.record.Attempts), r.record.Duration)
	}

	if err := o.sink.Write(context.WithoutCancel(ctx), r.record); err != nil {
		o.logger.Warn("Failed to write attempt log",
			zap.String("request_id", r.record.RequestID),
			zap.Error(err))
	}

	o.logger.Info("Generation finished",
		zap.String("request_id", r.record.RequestID),
		zap.String("profile", r.record.Profile),
		zap.String("result", string(r.record.FinalResult)),
		zap.Int("attempts", len(r.record.Attempts)),
		zap.Duration("duration", r.record.Duration))
}
