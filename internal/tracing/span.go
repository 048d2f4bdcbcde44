package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on iteration spans.
const (
	AttrWorker  = attribute.Key("poolbench.worker")
	AttrOutcome = attribute.Key("poolbench.outcome")
	AttrRunID   = attribute.Key("poolbench.run_id")
)

// StartIterationSpan starts a span covering one workload iteration.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, worker int) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = NoopTracer()
	}
	ctx, span := tracer.Start(ctx, "workload iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(AttrWorker.Int(worker))
	return ctx, span
}

// AddPhase records a state transition as a span event.
func AddPhase(span trace.Span, phase string) {
	span.AddEvent(phase)
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
