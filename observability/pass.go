package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PassContext holds observability context for one engine pass.
type PassContext struct {
	PassID    string
	Mode      string
	Graph     string
	StartTime time.Time
	Metrics   *EngineMetrics
}

// NewPassContext creates a pass context. If metrics is nil, metric
// recording is skipped.
func NewPassContext(passID, mode, graph string, metrics *EngineMetrics) *PassContext {
	return &PassContext{
		PassID:    passID,
		Mode:      mode,
		Graph:     graph,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

type passContextKey struct{}

// WithPassContext stores a PassContext in the context.
func WithPassContext(ctx context.Context, pc *PassContext) context.Context {
	return context.WithValue(ctx, passContextKey{}, pc)
}

// PassContextFromContext retrieves the PassContext from context, or nil.
func PassContextFromContext(ctx context.Context) *PassContext {
	if pc, ok := ctx.Value(passContextKey{}).(*PassContext); ok {
		return pc
	}
	return nil
}

// Start opens the pass span, stores the pass context in the returned
// context and records the pass start metric.
func (pc *PassContext) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, SpanPass)
	span.SetAttributes(
		attribute.String(AttrPassID, pc.PassID),
		attribute.String(AttrMode, pc.Mode),
	)
	if pc.Graph != "" {
		span.SetAttributes(attribute.String(AttrGraph, pc.Graph))
	}
	pc.Metrics.RecordPassStart(ctx)
	return WithPassContext(ctx, pc), span
}

// End annotates the span with the pass counters, ends it and records the
// pass end metric.
func (pc *PassContext) End(ctx context.Context, span trace.Span, processed, failed, cached int, err error) {
	duration := time.Since(pc.StartTime)
	status := StatusOK
	if err != nil || processed == 0 {
		status = StatusError
	}

	if err != nil {
		SetSpanError(trace.ContextWithSpan(ctx, span), err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int(AttrProcessed, processed),
		attribute.Int(AttrFailed, failed),
		attribute.Int(AttrCached, cached),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	pc.Metrics.RecordPassEnd(ctx, pc.Mode, status, duration)
}

// Duration returns the elapsed time since the pass started.
func (pc *PassContext) Duration() time.Duration {
	return time.Since(pc.StartTime)
}
