package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is the breaker position
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero values take the defaults applied by New.
type Settings struct {
	// MaxRequests bounds concurrent trial calls while half-open and is also the
	// number of trial successes needed to close again.
	MaxRequests uint32
	// Interval clears closed-state counts periodically.
	Interval time.Duration
	// Timeout is how long the breaker stays open before allowing trial calls.
	Timeout time.Duration
	// ReadyToTrip decides, after a closed-state failure, whether to open.
	ReadyToTrip func(counts Counts) bool
	// IsExcluded reports errors that count as neither success nor failure.
	// Defaults to caller cancellation.
	IsExcluded func(err error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeExcluded
)

// Breaker guards calls to a flaky dependency. Outcomes reported after the
// breaker has moved to a new generation are dropped.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	generation uint64
	deadline   time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Minute
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if settings.IsExcluded == nil {
		settings.IsExcluded = func(err error) bool {
			return errors.Is(err, context.Canceled)
		}
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		deadline: time.Now().Add(settings.Interval),
	}
}

// LogStateChanges returns an OnStateChange callback that logs transitions.
// Opening is logged at warn level.
func LogStateChanges(logger *zap.Logger) func(name string, from, to State) {
	return func(name string, from, to State) {
		level := zap.InfoLevel
		if to == StateOpen {
			level = zap.WarnLevel
		}
		logger.Log(level, "Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, applying any elapsed timeout
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())
	return b.state
}

// Counts returns a copy of the current generation's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Call runs fn if the breaker accepts the request. It returns ErrCircuitOpen
// or ErrTooManyRequests without calling fn when the breaker rejects it. A
// panic in fn counts as a failure and is re-raised.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			b.report(generation, outcomeFailure)
			panic(e)
		}
	}()

	err = fn(ctx)
	switch {
	case err == nil:
		b.report(generation, outcomeSuccess)
	case b.settings.IsExcluded(err):
		b.report(generation, outcomeExcluded)
	default:
		b.report(generation, outcomeFailure)
	}
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) report(generation uint64, o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.advance(now)
	if generation != b.generation {
		return
	}

	switch o {
	case outcomeExcluded:
		if b.counts.Requests > 0 {
			b.counts.Requests--
		}
	case outcomeSuccess:
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
	case outcomeFailure:
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.state == StateHalfOpen || b.settings.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	}
}

// advance applies time-based transitions. Callers hold mu.
func (b *Breaker) advance(now time.Time) {
	if b.deadline.IsZero() || now.Before(b.deadline) {
		return
	}
	switch b.state {
	case StateClosed:
		b.counts = Counts{}
		b.generation++
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.transition(StateHalfOpen, now)
	}
}

// transition moves to state and starts a new generation. Callers hold mu.
func (b *Breaker) transition(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.counts = Counts{}
	b.generation++

	switch state {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
