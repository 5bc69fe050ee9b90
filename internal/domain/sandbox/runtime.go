package sandbox

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// ErrTimeout is returned when a runtime cannot be acquired or a script
// runs past its deadline
var ErrTimeout = errors.New("sandbox timeout")

//go:embed assets/shim.js
var shimSource string

//go:embed assets/window.js
var windowSource string

var (
	programsOnce  sync.Once
	shimProgram   *goja.Program
	windowProgram *goja.Program
	programsErr   error
)

func programs() (*goja.Program, *goja.Program, error) {
	programsOnce.Do(func() {
		windowProgram, programsErr = goja.Compile("window.js", windowSource, false)
		if programsErr != nil {
			return
		}
		shimProgram, programsErr = goja.Compile("shim.js", shimSource, false)
	})
	return windowProgram, shimProgram, programsErr
}

// Config defines runtime limits
type Config struct {
	Timeout          time.Duration // per-script deadline
	MaxCallStackSize int
	PoolSize         int
	AcquireTimeout   time.Duration
	EnableConsole    bool
}

// DefaultConfig returns the limits used by the headless frame
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		PoolSize:         4,
		AcquireTimeout:   5 * time.Second,
		EnableConsole:    true,
	}
}

// Env is what a script can reach outside the VM
type Env struct {
	Document *Document
	// Post receives window.parent.postMessage payloads as JSON
	Post  func(data []byte)
	Icons []string
}

// Result holds execution output
type Result struct {
	Console  []LogEntry
	Duration time.Duration
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Runtime wraps a goja VM with the sandbox globals installed
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex

	console   []LogEntry
	consoleMu sync.Mutex
}

// NewRuntime creates a runtime
func NewRuntime(config Config) (*Runtime, error) {
	r := &Runtime{config: config}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs script with env bound, honouring the configured timeout and
// ctx. Interrupted scripts return an error wrapping ErrTimeout or ctx.Err().
func (r *Runtime) Execute(ctx context.Context, script string, env Env) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, errors.New("runtime is closed")
	}

	start := time.Now()
	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()

	if err := r.bind(env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()

	done := make(chan struct{})
	stopped := make(chan struct{})
	vm := r.vm
	go func() {
		defer close(stopped)
		select {
		case <-timer.C:
			vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_, err := vm.RunString(script)
	close(done)
	<-stopped
	vm.ClearInterrupt()

	result := &Result{Duration: time.Since(start)}
	r.consoleMu.Lock()
	result.Console = append([]LogEntry(nil), r.console...)
	r.consoleMu.Unlock()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return result, fmt.Errorf("script interrupted: %w", cause)
			}
		}
		return result, err
	}
	return result, nil
}

// Reset discards all script state
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reset()
}

// Close releases the VM
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	return nil
}

func (r *Runtime) reset() error {
	windowProg, shimProg, err := programs()
	if err != nil {
		return fmt.Errorf("compile sandbox shims: %w", err)
	}

	vm := goja.New()
	if r.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}
	r.vm = vm
	r.console = nil

	for _, name := range []string{"require", "process", "module", "exports", "XMLHttpRequest", "WebSocket"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	noop := func(goja.FunctionCall) goja.Value { return vm.ToValue(0) }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval", "requestAnimationFrame", "cancelAnimationFrame"} {
		if err := vm.Set(name, noop); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.consoleFunc(level)); err != nil {
				return err
			}
		}
		if err := vm.Set("console", console); err != nil {
			return err
		}
	}

	if _, err := vm.RunProgram(windowProg); err != nil {
		return fmt.Errorf("install window globals: %w", err)
	}
	if _, err := vm.RunProgram(shimProg); err != nil {
		return fmt.Errorf("install library shims: %w", err)
	}
	return nil
}

// bind installs env for the next script. Must be called with mu held.
func (r *Runtime) bind(env Env) error {
	vm := r.vm

	parent := vm.NewObject()
	if err := parent.Set("postMessage", r.postMessage(env.Post)); err != nil {
		return err
	}
	if err := vm.Set("parent", parent); err != nil {
		return err
	}
	if err := vm.Set("top", parent); err != nil {
		return err
	}

	if env.Document != nil {
		if err := vm.Set("document", r.documentProxy(env.Document)); err != nil {
			return err
		}
	}

	if len(env.Icons) > 0 {
		register, ok := goja.AssertFunction(vm.Get("__registerIcons"))
		if !ok {
			return errors.New("icon registry missing")
		}
		if _, err := register(goja.Undefined(), vm.ToValue(env.Icons)); err != nil {
			return fmt.Errorf("register icons: %w", err)
		}
	}
	return nil
}

// postMessage serializes its first argument the way structured clone would
// reach a JSON channel
func (r *Runtime) postMessage(post func([]byte)) func(goja.FunctionCall) goja.Value {
	vm := r.vm
	return func(call goja.FunctionCall) goja.Value {
		if post == nil {
			return goja.Undefined()
		}
		stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
		if !ok {
			return goja.Undefined()
		}
		out, err := stringify(goja.Undefined(), call.Argument(0))
		if err != nil || goja.IsUndefined(out) {
			return goja.Undefined()
		}
		post([]byte(out.String()))
		return goja.Undefined()
	}
}

func (r *Runtime) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}

func (r *Runtime) documentProxy(doc *Document) *goja.Object {
	vm := r.vm
	document := vm.NewObject()

	lookup := func(find func(string) *Element) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			el := find(call.Argument(0).String())
			if el == nil {
				return goja.Null()
			}
			return r.elementProxy(el)
		}
	}

	_ = document.Set("getElementById", lookup(doc.GetElementByID))
	_ = document.Set("querySelector", lookup(doc.QuerySelector))
	_ = document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		elems := doc.QuerySelectorAll(call.Argument(0).String())
		proxies := make([]interface{}, len(elems))
		for i, el := range elems {
			proxies[i] = r.elementProxy(el)
		}
		return vm.ToValue(proxies)
	})
	_ = document.Set("createElement", func(call goja.FunctionCall) goja.Value {
		return r.detachedElement(call.Argument(0).String())
	})
	_ = document.Set("addEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = document.Set("removeEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	if body := doc.Body(); body != nil {
		_ = document.Set("body", r.elementProxy(body))
	}
	return document
}

func (r *Runtime) elementProxy(el *Element) *goja.Object {
	vm := r.vm
	obj := vm.NewObject()

	_ = obj.Set("tagName", el.TagName())
	_ = obj.Set("id", el.ID())
	_ = obj.Set("className", el.GetAttribute("class"))
	_ = obj.Set("style", vm.NewObject())
	_ = obj.Set("getAttribute", func(name string) string { return el.GetAttribute(name) })
	_ = obj.Set("setAttribute", func(name, value string) { el.SetAttribute(name, value) })
	_ = obj.DefineAccessorProperty("textContent", vm.ToValue(func() string { return el.TextContent() }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("innerHTML", vm.ToValue(func() string { return el.InnerHTML() }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.Set("addEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = obj.Set("removeEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = obj.Set("__mount", func(call goja.FunctionCall) goja.Value {
		if err := el.Mount(call.Argument(0).String()); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	return obj
}

// detachedElement stands in for nodes created but never attached
func (r *Runtime) detachedElement(tag string) *goja.Object {
	vm := r.vm
	obj := vm.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }

	_ = obj.Set("tagName", strings.ToUpper(tag))
	_ = obj.Set("style", vm.NewObject())
	_ = obj.Set("setAttribute", noop)
	_ = obj.Set("appendChild", noop)
	_ = obj.Set("addEventListener", noop)
	_ = obj.Set("getContext", func(goja.FunctionCall) goja.Value { return goja.Null() })
	return obj
}
