/*
Package orchestrator runs the bounded generate and fix loop that turns a
conversation into a compiling component.

A request moves through

	generating -> validating -> compiling -> succeeded
	                  ^             |
	                  |             v
	               fixing <----- (failed, budget left)

and ends in failed once 1+MaxRetries model calls have been spent. Each pass
through the loop appends exactly one attempt, and one attemptlog.Record is
written per request, including aborted ones.

Fix requests always carry the immediately previous attempt's source and the
instructions derived from its diagnostics (FixPrompt) or validation reason
(ValidationFixPrompt).

# Usage

	orch := orchestrator.New(model, validator.New(nil), compiler.New(nil), 2).
		WithSink(sink).
		WithLogger(logger).
		WithMetrics(metrics)

	out, err := orch.Run(ctx, orchestrator.Request{Messages: msgs})
	var genErr *orchestrator.GenerationError
	if errors.As(err, &genErr) {
		// show genErr.Friendly, log genErr.Technical
	}
*/
package orchestrator
