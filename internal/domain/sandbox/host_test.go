package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFrame records what the host posts. It never emits on its own.
type fakeFrame struct {
	instance id.InstanceID
	emit     Emit
	// beforePost runs ahead of recording each post
	beforePost func(code string)

	mu     sync.Mutex
	posts  []string
	closed bool
}

func (f *fakeFrame) Post(data []byte) error {
	code, err := DecodeInject(data)
	if err != nil {
		return err
	}
	if f.beforePost != nil {
		f.beforePost(code)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFrameClosed
	}
	f.posts = append(f.posts, code)
	return nil
}

func (f *fakeFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFrame) Posts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func (f *fakeFrame) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeFrame) send(t *testing.T, msg string) {
	t.Helper()
	f.emit([]byte(msg))
}

type fakeFactory struct {
	mu     sync.Mutex
	frames []*fakeFrame
	// onCreate runs inside NewFrame, before the host stores the handle
	onCreate func(f *fakeFrame)
	err      error
}

func (ff *fakeFactory) NewFrame(_ context.Context, instance id.InstanceID, emit Emit) (Frame, error) {
	if ff.err != nil {
		return nil, ff.err
	}
	f := &fakeFrame{instance: instance, emit: emit}
	ff.mu.Lock()
	ff.frames = append(ff.frames, f)
	ff.mu.Unlock()
	if ff.onCreate != nil {
		ff.onCreate(f)
	}
	return f, nil
}

func (ff *fakeFactory) last(t *testing.T) *fakeFrame {
	t.Helper()
	ff.mu.Lock()
	defer ff.mu.Unlock()
	require.NotEmpty(t, ff.frames)
	return ff.frames[len(ff.frames)-1]
}

type recorder struct {
	mu     sync.Mutex
	ready  []id.InstanceID
	errors []Message
}

func (r *recorder) ExecutionReady(instance id.InstanceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, instance)
}

func (r *recorder) ExecutionError(_ id.InstanceID, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func newTestHost(t *testing.T) (*Host, *fakeFactory, *recorder) {
	t.Helper()
	factory := &fakeFactory{}
	rec := &recorder{}
	host := NewHost(factory, rec)
	t.Cleanup(func() { host.Close() })
	return host, factory, rec
}

func TestHostQueuesLatestUntilReady(t *testing.T) {
	host, factory, _ := newTestHost(t)
	require.NoError(t, host.Start(context.Background()))
	frame := factory.last(t)

	require.NoError(t, host.Inject("first"))
	require.NoError(t, host.Inject("second"))
	require.NoError(t, host.Inject("third"))
	assert.Empty(t, frame.Posts(), "nothing is posted before frameReady")
	assert.False(t, host.Ready())

	frame.send(t, `{"type":"frameReady"}`)
	assert.True(t, host.Ready())
	assert.Equal(t, []string{"third"}, frame.Posts())

	// a second frameReady must not flush again
	frame.send(t, `{"type":"frameReady"}`)
	assert.Equal(t, []string{"third"}, frame.Posts())

	require.NoError(t, host.Inject("fourth"))
	assert.Equal(t, []string{"third", "fourth"}, frame.Posts())
}

func TestHostInjectBeforeStart(t *testing.T) {
	host, factory, _ := newTestHost(t)

	require.NoError(t, host.Inject("early"))
	require.NoError(t, host.Start(context.Background()))

	frame := factory.last(t)
	assert.Empty(t, frame.Posts())
	frame.send(t, `{"type":"frameReady"}`)
	assert.Equal(t, []string{"early"}, frame.Posts())
}

func TestHostReadyBeforeHandleStored(t *testing.T) {
	factory := &fakeFactory{}
	factory.onCreate = func(f *fakeFrame) {
		f.emit([]byte(`{"type":"frameReady"}`))
	}
	host := NewHost(factory, nil)
	defer host.Close()

	require.NoError(t, host.Inject("code"))
	require.NoError(t, host.Start(context.Background()))

	assert.Equal(t, []string{"code"}, factory.last(t).Posts())
	assert.True(t, host.Ready())
}

func TestHostFlushPrecedesLaterInject(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	factory := &fakeFactory{}
	factory.onCreate = func(f *fakeFrame) {
		f.beforePost = func(code string) {
			if code == "old" {
				close(entered)
				<-release
			}
		}
	}
	host := NewHost(factory, nil)
	defer host.Close()

	require.NoError(t, host.Inject("old"))
	require.NoError(t, host.Start(context.Background()))
	frame := factory.last(t)

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		frame.send(t, `{"type":"frameReady"}`)
	}()
	<-entered
	require.True(t, host.Ready())

	injected := make(chan error, 1)
	go func() { injected <- host.Inject("new") }()

	assert.Never(t, func() bool {
		return len(frame.Posts()) > 0
	}, 50*time.Millisecond, 5*time.Millisecond, "newer code must wait for the flush")

	close(release)
	<-flushed
	require.NoError(t, <-injected)
	assert.Equal(t, []string{"old", "new"}, frame.Posts())
}

func TestHostRoutesOutcome(t *testing.T) {
	host, factory, rec := newTestHost(t)
	require.NoError(t, host.Start(context.Background()))
	frame := factory.last(t)
	frame.send(t, `{"type":"frameReady"}`)

	frame.send(t, `{"type":"executionReady"}`)
	frame.send(t, `{"type":"executionError","message":"x is not defined","stack":"ReferenceError"}`)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []id.InstanceID{host.Instance()}, rec.ready)
	require.Len(t, rec.errors, 1)
	assert.Equal(t, "x is not defined", rec.errors[0].Message)
	assert.Equal(t, "ReferenceError", rec.errors[0].Stack)
}

func TestHostRejectsInvalidMessages(t *testing.T) {
	host, factory, rec := newTestHost(t)
	require.NoError(t, host.Start(context.Background()))
	frame := factory.last(t)

	err := host.Deliver(frame.instance, []byte(`{"type":"hello"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.False(t, host.Ready())

	err = host.Deliver(frame.instance, []byte(`{"type":"executionReady","extra":true}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.Empty(t, rec.ready)
}

func TestHostDiscardsStaleInstance(t *testing.T) {
	host, factory, rec := newTestHost(t)
	require.NoError(t, host.Start(context.Background()))
	old := factory.last(t)
	old.send(t, `{"type":"frameReady"}`)

	require.NoError(t, host.Recreate(context.Background()))
	current := factory.last(t)
	require.NotEqual(t, old.instance, current.instance)
	assert.True(t, old.Closed())
	assert.Equal(t, current.instance, host.Instance())
	assert.False(t, host.Ready(), "a new instance starts not ready")

	err := host.Deliver(old.instance, []byte(`{"type":"executionReady"}`))
	assert.ErrorIs(t, err, ErrStaleInstance)
	err = host.Deliver(old.instance, []byte(`{"type":"frameReady"}`))
	assert.ErrorIs(t, err, ErrStaleInstance)

	assert.Empty(t, rec.ready)
	assert.False(t, host.Ready())
}

func TestHostRecreateCarriesPending(t *testing.T) {
	host, factory, _ := newTestHost(t)
	require.NoError(t, host.Start(context.Background()))
	old := factory.last(t)

	require.NoError(t, host.Inject("queued"))
	require.NoError(t, host.Recreate(context.Background()))

	current := factory.last(t)
	current.send(t, `{"type":"frameReady"}`)
	assert.Empty(t, old.Posts())
	assert.Equal(t, []string{"queued"}, current.Posts())
}

func TestHostClose(t *testing.T) {
	host, factory, rec := newTestHost(t)
	require.NoError(t, host.Start(context.Background()))
	frame := factory.last(t)

	require.NoError(t, host.Close())
	require.NoError(t, host.Close())
	assert.True(t, frame.Closed())

	assert.ErrorIs(t, host.Inject("x"), ErrHostClosed)
	assert.ErrorIs(t, host.Recreate(context.Background()), ErrHostClosed)
	assert.ErrorIs(t, host.Deliver(frame.instance, []byte(`{"type":"executionReady"}`)), ErrStaleInstance)
	assert.Empty(t, rec.ready)
}

func TestHostFactoryError(t *testing.T) {
	factory := &fakeFactory{err: errors.New("no frames today")}
	host := NewHost(factory, nil)
	defer host.Close()

	err := host.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no frames today")
}

func TestHostMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	factory := &fakeFactory{}
	host := NewHost(factory, nil).WithMetrics(metrics)

	require.NoError(t, host.Start(context.Background()))
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveSandboxes)

	require.NoError(t, host.Recreate(context.Background()))
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveSandboxes)

	require.NoError(t, host.Close())
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveSandboxes)
}
