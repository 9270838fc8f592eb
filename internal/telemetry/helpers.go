package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartTickSpan begins a span for one heartbeat tick.
func (p *Provider) StartTickSpan(ctx context.Context, seq int64) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, SpanPrefixTick+"run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int64(AttrTickSeq, seq)),
	)
}

// StartDispatchSpan begins a span for one dispatch pipeline run.
func (p *Provider) StartDispatchSpan(ctx context.Context, projectSlug, role, level, issueID string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, SpanPrefixDispatch+"run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrProjectSlug, projectSlug),
			attribute.String(AttrRole, role),
			attribute.String(AttrLevel, level),
			attribute.String(AttrIssueID, issueID),
		),
	)
}

// StartHealthSpan begins a span for one role's health check pass.
func (p *Provider) StartHealthSpan(ctx context.Context, projectSlug, role string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, SpanPrefixHealth+"check_role",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrProjectSlug, projectSlug),
			attribute.String(AttrRole, role),
		),
	)
}

// RecordError marks span as failed and attaches the error, mirroring the
// teacher's command-middleware error-recording idiom.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
}

// SetOK marks span as having completed successfully.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
