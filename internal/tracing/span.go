package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrRunID     = "surge.run_id"
	attrVU        = "surge.vu"
	attrIteration = "surge.iteration"
)

// StartIterationSpan starts the root span for one pass of a virtual user.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, runID string, vu int, iteration int64) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String(attrRunID, runID),
		attribute.Int(attrVU, vu),
		attribute.Int64(attrIteration, iteration),
	)
	return ctx, span
}

// StartRequestSpan starts a new client span for a request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, protocol, step string) (context.Context, trace.Span) {
	spanName := protocol + " request"
	if step != "" {
		spanName = protocol + " " + step
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("network.protocol.name", protocol),
	)
	if step != "" {
		span.SetAttributes(attribute.String("surge.step", step))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
