package tracing

import (
	"context"
	"strconv"

	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithRemoteParent(c.Request.Context(),
			id.TraceID(c.GetHeader(HeaderTraceID)),
			id.SpanID(c.GetHeader(HeaderSpanID)))

		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}
		span, ctx := tracer.StartSpan(ctx, name)
		span.SetTag("http.method", c.Request.Method)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, span.TraceID.String())
		c.Header(HeaderSpanID, span.SpanID.String())

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		tracer.End(span)
	}
}

// GRPCUnaryInterceptor creates a gRPC unary interceptor for tracing
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		span, ctx := tracer.StartSpan(incoming(ctx), info.FullMethod)
		span.SetTag("rpc.system", "grpc")

		resp, err := handler(ctx, req)
		finishRPC(span, err)
		tracer.End(span)

		return resp, err
	}
}

// GRPCStreamInterceptor creates a gRPC stream interceptor for tracing. The
// health Watch method is the only stream served.
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		span, ctx := tracer.StartSpan(incoming(ss.Context()), info.FullMethod)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("rpc.streaming", "true")

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		finishRPC(span, err)
		tracer.End(span)

		return err
	}
}

// incoming seeds ctx with trace context from gRPC metadata
func incoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	var traceID id.TraceID
	var parentID id.SpanID
	if vals := md.Get("x-trace-id"); len(vals) > 0 {
		traceID = id.TraceID(vals[0])
	}
	if vals := md.Get("x-span-id"); len(vals) > 0 {
		parentID = id.SpanID(vals[0])
	}
	return WithRemoteParent(ctx, traceID, parentID)
}

func finishRPC(span *Span, err error) {
	code := status.Code(err)
	span.SetTag("rpc.code", code.String())
	span.SetStatus(int(code))
	if err != nil {
		span.SetError(err)
	}
}

type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}
