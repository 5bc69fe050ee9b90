package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
)

// PreviewResult is the outcome of running one executable in a fresh
// headless frame
type PreviewResult struct {
	Instance id.InstanceID `json:"instance"`
	Message  Message       `json:"message"`
	Markup   string        `json:"markup,omitempty"`
	Console  []LogEntry    `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// OK reports whether the component mounted
func (p *PreviewResult) OK() bool {
	return p.Message.Type == TypeExecutionReady
}

// Preview injects code into a new headless frame through a Host and waits
// for executionReady or executionError
func Preview(ctx context.Context, factory *HeadlessFactory, code string) (*PreviewResult, error) {
	start := time.Now()
	outcome := make(chan Message, 1)
	report := func(msg Message) {
		select {
		case outcome <- msg:
		default:
		}
	}

	var frame *HeadlessFrame
	capture := FrameFactoryFunc(func(ctx context.Context, instance id.InstanceID, emit Emit) (Frame, error) {
		f, err := factory.NewFrame(ctx, instance, emit)
		if err != nil {
			return nil, err
		}
		frame = f.(*HeadlessFrame)
		return f, nil
	})

	host := NewHost(capture, ListenerFuncs{
		OnReady: func(id.InstanceID) { report(Message{Type: TypeExecutionReady}) },
		OnError: func(_ id.InstanceID, msg Message) { report(msg) },
	}).WithLogger(factory.logger)

	if err := host.Inject(code); err != nil {
		return nil, err
	}
	if err := host.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		host.Close()
		<-frame.Done()
	}()

	select {
	case msg := <-outcome:
		// let the frame finish so its console is complete
		host.Close()
		<-frame.Done()
		res := &PreviewResult{
			Instance: host.Instance(),
			Message:  msg,
			Console:  frame.Console(),
			Duration: time.Since(start),
		}
		if doc := frame.Document(); doc != nil {
			res.Markup = doc.InnerHTML(MountID)
		}
		return res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("preview: %w", ctx.Err())
	}
}

// Preview runs code in a fresh frame from f
func (f *HeadlessFactory) Preview(ctx context.Context, code string) (*PreviewResult, error) {
	return Preview(ctx, f, code)
}
