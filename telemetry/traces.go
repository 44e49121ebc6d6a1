package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
const (
	AttrPath     = "gatewarden.request.path"
	AttrPrefix   = "gatewarden.policy.prefix"
	AttrMode     = "gatewarden.policy.mode"
	AttrClass    = "gatewarden.request.class"
	AttrDecision = "gatewarden.decision"
	AttrActor    = "gatewarden.actor"
)

// SpanOptions provides common attributes for span creation.
type SpanOptions struct {
	Path   string
	Prefix string
	Mode   string
	Class  string
	Actor  string
}

// StartSpan starts a new span with common guard attributes.
func (p *Provider) StartSpan(ctx context.Context, name string, opts SpanOptions) (context.Context, trace.Span) {
	tracer := p.Tracer()
	if tracer == nil {
		return ctx, nil
	}

	attrs := []attribute.KeyValue{}

	if opts.Path != "" {
		attrs = append(attrs, attribute.String(AttrPath, opts.Path))
	}
	if opts.Prefix != "" {
		attrs = append(attrs, attribute.String(AttrPrefix, opts.Prefix))
	}
	if opts.Mode != "" {
		attrs = append(attrs, attribute.String(AttrMode, opts.Mode))
	}
	if opts.Class != "" {
		attrs = append(attrs, attribute.String(AttrClass, opts.Class))
	}
	if opts.Actor != "" {
		attrs = append(attrs, attribute.String(AttrActor, opts.Actor))
	}

	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// ---- Guard Spans ----

// SpanEvaluate starts a span for one policy evaluation.
func (p *Provider) SpanEvaluate(ctx context.Context, path, prefix, mode string) (context.Context, trace.Span) {
	return p.StartSpan(ctx, "gatewarden.evaluate", SpanOptions{
		Path:   path,
		Prefix: prefix,
		Mode:   mode,
	})
}

// SpanResolveSession starts a span for session resolution.
func (p *Provider) SpanResolveSession(ctx context.Context, path string) (context.Context, trace.Span) {
	return p.StartSpan(ctx, "gatewarden.resolve_session", SpanOptions{
		Path: path,
	})
}

// ---- Utility Functions ----

// SetSpanDecision records the evaluation outcome on the span.
func SetSpanDecision(span trace.Span, decision string) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrDecision, decision))
}

// SetSpanError marks a span as having an error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan ends a span with optional error handling.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		SetSpanError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
