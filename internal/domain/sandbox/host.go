package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"go.uber.org/zap"
)

var (
	// ErrStaleInstance is returned for messages from a frame that has been replaced
	ErrStaleInstance = errors.New("message from stale sandbox instance")
	// ErrHostClosed is returned after Close
	ErrHostClosed = errors.New("sandbox host is closed")
)

// Frame is the host's handle on one isolated execution context. Post must
// not block on the frame's own work.
type Frame interface {
	Post(data []byte) error
	Close() error
}

// Emit carries a frame-to-host message back to the host
type Emit func(data []byte)

// FrameFactory creates frames. emit is bound to the new instance.
type FrameFactory interface {
	NewFrame(ctx context.Context, instance id.InstanceID, emit Emit) (Frame, error)
}

// FrameFactoryFunc adapts a function to FrameFactory
type FrameFactoryFunc func(ctx context.Context, instance id.InstanceID, emit Emit) (Frame, error)

// NewFrame calls f
func (f FrameFactoryFunc) NewFrame(ctx context.Context, instance id.InstanceID, emit Emit) (Frame, error) {
	return f(ctx, instance, emit)
}

// Listener receives the execution outcome of each injection
type Listener interface {
	ExecutionReady(instance id.InstanceID)
	ExecutionError(instance id.InstanceID, msg Message)
}

// ListenerFuncs adapts functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	OnReady func(instance id.InstanceID)
	OnError func(instance id.InstanceID, msg Message)
}

func (l ListenerFuncs) ExecutionReady(instance id.InstanceID) {
	if l.OnReady != nil {
		l.OnReady(instance)
	}
}

func (l ListenerFuncs) ExecutionError(instance id.InstanceID, msg Message) {
	if l.OnError != nil {
		l.OnError(instance, msg)
	}
}

// Host owns the frame of one visualization session and is reused across
// injections. Code injected before the frame reports frameReady is queued;
// only the latest queued code survives and it is flushed exactly once.
type Host struct {
	factory  FrameFactory
	listener Listener
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	instance id.InstanceID
	frame    Frame
	ready    bool
	pending  *string
	closed   bool

	// deliverMu serializes Deliver so listener callbacks keep emission order
	deliverMu sync.Mutex
	// postMu orders posts to the frame. It is taken before mu.
	postMu sync.Mutex
}

// NewHost creates a host without a frame. Call Start or Recreate to create one.
func NewHost(factory FrameFactory, listener Listener) *Host {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Host{
		factory:  factory,
		listener: listener,
		logger:   zap.NewNop(),
	}
}

// WithLogger adds logging
func (h *Host) WithLogger(logger *zap.Logger) *Host {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithMetrics adds metrics tracking
func (h *Host) WithMetrics(metrics *monitoring.Metrics) *Host {
	h.metrics = metrics
	return h
}

// Start creates the first frame
func (h *Host) Start(ctx context.Context) error {
	return h.Recreate(ctx)
}

// Instance returns the active instance ID
func (h *Host) Instance() id.InstanceID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance
}

// Ready reports whether the active frame has sent frameReady
func (h *Host) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// Inject delivers code to the frame, or queues it until the frame is ready
func (h *Host) Inject(code string) error {
	h.postMu.Lock()
	defer h.postMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	if h.frame == nil || !h.ready {
		if h.pending != nil {
			h.logger.Debug("Replacing queued injection", zap.String("instance", h.instance.String()))
		}
		h.pending = &code
		h.mu.Unlock()
		return nil
	}
	frame := h.frame
	h.mu.Unlock()

	return h.post(frame, code)
}

// Deliver handles a message emitted by the frame tagged instance. Messages
// from any other instance are discarded with ErrStaleInstance.
func (h *Host) Deliver(instance id.InstanceID, data []byte) error {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	msg, err := Decode(data)
	if err != nil {
		h.record("invalid", false)
		h.logger.Warn("Rejected sandbox message",
			zap.String("instance", instance.String()),
			zap.Error(err))
		return err
	}

	if msg.Type == TypeFrameReady {
		// a queued flush must land before any Inject that sees ready
		h.postMu.Lock()
		defer h.postMu.Unlock()
	}

	h.mu.Lock()
	if h.closed || instance != h.instance {
		h.mu.Unlock()
		h.record(msg.Type, false)
		h.logger.Debug("Discarded message from stale instance",
			zap.String("instance", instance.String()),
			zap.String("type", string(msg.Type)))
		return ErrStaleInstance
	}

	var (
		frame   Frame
		flushed *string
	)
	if msg.Type == TypeFrameReady {
		if h.ready {
			h.mu.Unlock()
			h.record(msg.Type, false)
			return nil
		}
		h.ready = true
		if h.frame != nil && h.pending != nil {
			frame, flushed = h.frame, h.pending
			h.pending = nil
		}
	}
	h.mu.Unlock()
	h.record(msg.Type, true)

	switch msg.Type {
	case TypeFrameReady:
		if flushed != nil {
			return h.post(frame, *flushed)
		}
	case TypeExecutionReady:
		h.listener.ExecutionReady(instance)
	case TypeExecutionError:
		h.logger.Info("Sandbox execution failed",
			zap.String("instance", instance.String()),
			zap.String("message", msg.Message))
		h.listener.ExecutionError(instance, msg)
	}
	return nil
}

// Recreate tears down the current frame and starts a new instance. Queued
// code carries over to the new frame.
func (h *Host) Recreate(ctx context.Context) error {
	instance := id.NewInstanceID()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	old := h.frame
	h.instance = instance
	h.frame = nil
	h.ready = false
	h.mu.Unlock()

	h.closeFrame(old)

	frame, err := h.factory.NewFrame(ctx, instance, func(data []byte) {
		if err := h.Deliver(instance, data); err != nil && !errors.Is(err, ErrStaleInstance) {
			h.logger.Debug("Deliver failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("create sandbox frame: %w", err)
	}
	if h.metrics != nil {
		h.metrics.IncSandboxInstances()
	}

	h.postMu.Lock()
	defer h.postMu.Unlock()

	h.mu.Lock()
	if h.closed || h.instance != instance {
		h.mu.Unlock()
		h.closeFrame(frame)
		return nil
	}
	h.frame = frame

	// frameReady may have arrived before the frame handle was stored
	var flushed *string
	if h.ready && h.pending != nil {
		flushed = h.pending
		h.pending = nil
	}
	h.mu.Unlock()

	h.logger.Debug("Sandbox frame created", zap.String("instance", instance.String()))

	if flushed != nil {
		return h.post(frame, *flushed)
	}
	return nil
}

// Close tears down the frame. Further messages are discarded.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	frame := h.frame
	h.frame = nil
	h.pending = nil
	h.mu.Unlock()

	h.closeFrame(frame)
	return nil
}

func (h *Host) post(frame Frame, code string) error {
	data, err := EncodeInject(code)
	if err != nil {
		return fmt.Errorf("encode inject: %w", err)
	}
	if err := frame.Post(data); err != nil {
		return fmt.Errorf("post to sandbox: %w", err)
	}
	return nil
}

func (h *Host) closeFrame(frame Frame) {
	if frame == nil {
		return
	}
	if err := frame.Close(); err != nil {
		h.logger.Warn("Failed to close sandbox frame", zap.Error(err))
	}
	if h.metrics != nil {
		h.metrics.DecSandboxInstances()
	}
}

func (h *Host) record(msgType MessageType, accepted bool) {
	if h.metrics != nil {
		h.metrics.RecordSandboxMessage(string(msgType), accepted)
	}
}
