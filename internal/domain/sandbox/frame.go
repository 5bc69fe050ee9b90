package sandbox

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"go.uber.org/zap"
)

// ErrFrameClosed is returned by Post after Close
var ErrFrameClosed = errors.New("sandbox frame is closed")

// iconRe finds icons read from the icon library binding of compiled code
var iconRe = regexp.MustCompile(`import_lucide_react\d*\.([A-Z]\w*)`)

// HeadlessFactory creates frames that execute in pooled goja runtimes
// against a parsed copy of the host page
type HeadlessFactory struct {
	pool   *Pool
	page   []byte
	logger *zap.Logger
}

// NewHeadlessFactory creates a factory over pool. A nil page uses the
// embedded host page.
func NewHeadlessFactory(pool *Pool, page []byte) *HeadlessFactory {
	if page == nil {
		page = Page()
	}
	return &HeadlessFactory{pool: pool, page: page, logger: zap.NewNop()}
}

// WithLogger adds logging
func (f *HeadlessFactory) WithLogger(logger *zap.Logger) *HeadlessFactory {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// NewFrame starts a headless frame. Its lifetime is independent of ctx; only
// Close stops it.
func (f *HeadlessFactory) NewFrame(_ context.Context, instance id.InstanceID, emit Emit) (Frame, error) {
	ctx, cancel := context.WithCancel(context.Background())
	fr := &HeadlessFrame{
		instance: instance,
		factory:  f,
		emit:     emit,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go fr.loop()
	return fr, nil
}

// HeadlessFrame is a frame whose messages are handled one at a time on its
// own goroutine, like an iframe's event loop
type HeadlessFrame struct {
	instance id.InstanceID
	factory  *HeadlessFactory
	emit     Emit
	ctx      context.Context
	cancel   context.CancelFunc
	wake     chan struct{}
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	queue     [][]byte
	closed    bool
	doc       *Document
	console   []LogEntry
}

// Post queues an instruction for the frame without blocking
func (f *HeadlessFrame) Post(data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFrameClosed
	}
	f.queue = append(f.queue, data)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the frame and interrupts a running script. It does not wait
// for the frame goroutine, so it is safe to call from a Listener; use Done
// to wait.
func (f *HeadlessFrame) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.queue = nil
		f.mu.Unlock()
		f.cancel()
	})
	return nil
}

// Done is closed once the frame goroutine has exited
func (f *HeadlessFrame) Done() <-chan struct{} {
	return f.done
}

// Document returns the document of the last injection
func (f *HeadlessFrame) Document() *Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

// Console returns the console output of the last injection
func (f *HeadlessFrame) Console() []LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LogEntry(nil), f.console...)
}

func (f *HeadlessFrame) loop() {
	defer close(f.done)

	f.send(Message{Type: TypeFrameReady})

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.wake:
			for {
				data, ok := f.next()
				if !ok {
					break
				}
				f.handle(data)
			}
		}
	}
}

func (f *HeadlessFrame) next() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.queue) == 0 {
		return nil, false
	}
	data := f.queue[0]
	f.queue = f.queue[1:]
	return data, true
}

func (f *HeadlessFrame) handle(data []byte) {
	code, err := DecodeInject(data)
	if err != nil {
		f.factory.logger.Debug("Frame ignored message",
			zap.String("instance", f.instance.String()),
			zap.Error(err))
		return
	}

	doc, err := ParseDocument(f.factory.page)
	if err != nil {
		f.send(Message{Type: TypeExecutionError, Message: err.Error()})
		return
	}

	f.mu.Lock()
	f.doc = doc
	f.console = nil
	f.mu.Unlock()

	res, err := f.factory.pool.Execute(f.ctx, code, Env{
		Document: doc,
		Post:     f.emit,
		Icons:    icons(code),
	})

	if res != nil {
		f.mu.Lock()
		f.console = res.Console
		f.mu.Unlock()
	}

	if err != nil {
		if f.ctx.Err() != nil {
			return
		}
		// errors the wrapper could not catch: syntax errors and interrupts
		f.send(Message{Type: TypeExecutionError, Message: err.Error()})
	}
}

func (f *HeadlessFrame) send(msg Message) {
	data, err := Encode(msg)
	if err != nil {
		f.factory.logger.Warn("Failed to encode frame message", zap.Error(err))
		return
	}
	f.emit(data)
}

func icons(code string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range iconRe.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
