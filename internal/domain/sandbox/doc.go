/*
Package sandbox runs compiled components in isolated frames and speaks the
message protocol between a frame and its host.

# Protocol

A frame sends three messages to its host, all JSON with a "type" field:

	{"type":"frameReady"}                        frame can accept code
	{"type":"executionReady"}                    component mounted
	{"type":"executionError","message":"...","stack":"..."}

The host sends one:

	{"type":"inject","code":"..."}

Anything else, including unknown fields, is rejected by Decode.

# Host

Host owns one frame per visualization session. Inject before frameReady
queues the code, and only the latest queued code survives. The queue is
flushed exactly once on frameReady. Recreate replaces the frame with a new
instance; messages still arriving from the old instance are discarded.

	host := sandbox.NewHost(factory, listener).WithLogger(logger)
	if err := host.Start(ctx); err != nil {
		return err
	}
	host.Inject(result.Executable)

# Frames

The browser frame is the embedded host page (see Page), which loads the UI
libraries as window globals and runs injected code on message.

HeadlessFactory builds frames that execute on a pool of goja runtimes
against a parsed copy of the same page. Library globals are replaced by
shims that render elements to markup, so a component that mounts headlessly
produces the same executionReady or executionError a browser would report
for render-time failures. Effects and timers do not run.
*/
package sandbox
