/*
Package tracing provides lightweight request tracing logged through zap.

A trace follows one request through the HTTP handler, the generation loop
and its model calls. Spans are buffered and written by a single collector
goroutine; Close drains the buffer and stops it.

# Usage

	tracer := tracing.New("conceptcanvas", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	span, ctx := tracer.StartSpan(ctx, "orchestrator.attempt")
	defer tracer.End(span)

# Propagation

Trace context travels in the X-Trace-ID and X-Span-ID headers, and in the
x-trace-id and x-span-id gRPC metadata keys.
*/
package tracing
