package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/resilience"
)

// Invocation is one call of a node's unit.
type Invocation struct {
	PassID  string
	Node    *graph.Node
	Inputs  graph.Values
	Context graph.UnitContext
	// Attempts counts calls into the unit, retries included.
	Attempts int
}

// Invoker calls a node's unit. Decorators wrap an Invoker to add tracing,
// metrics, logging and retries.
type Invoker interface {
	Invoke(ctx context.Context, inv *Invocation) (graph.Values, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, inv *Invocation) (graph.Values, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, inv *Invocation) (graph.Values, error) {
	return f(ctx, inv)
}

// unitInvoker calls Process and turns a panic into an error.
func unitInvoker() Invoker {
	return InvokerFunc(func(ctx context.Context, inv *Invocation) (out graph.Values, err error) {
		unit := inv.Node.Unit
		if unit == nil {
			return nil, errors.UnitMissing(int(inv.Node.ID))
		}
		inv.Attempts++
		defer func() {
			if r := recover(); r != nil {
				out = nil
				err = fmt.Errorf("unit panicked: %w", errors.FromPanic(r))
			}
		}()
		return unit.Process(ctx, inv.Inputs, inv.Context)
	})
}

// retryInvoker retries transient unit failures.
func retryInvoker(next Invoker, cfg resilience.RetryConfig) Invoker {
	if !cfg.Enabled() {
		return next
	}
	return InvokerFunc(func(ctx context.Context, inv *Invocation) (graph.Values, error) {
		return resilience.Retry(ctx, cfg, func() (graph.Values, error) {
			return next.Invoke(ctx, inv)
		})
	})
}

// tracingInvoker wraps each invocation in a "nodeflow.node" span.
func tracingInvoker(next Invoker) Invoker {
	return InvokerFunc(func(ctx context.Context, inv *Invocation) (graph.Values, error) {
		ctx, span := observability.StartSpan(ctx, observability.SpanNode)
		defer span.End()

		observability.SetSpanAttribute(ctx, observability.AttrPassID, inv.PassID)
		observability.SetSpanAttribute(ctx, observability.AttrNodeID, int(inv.Node.ID))
		observability.SetSpanAttribute(ctx, observability.AttrNodeTitle, inv.Node.Title)
		observability.SetSpanAttribute(ctx, observability.AttrScript, inv.Node.Script)

		out, err := next.Invoke(ctx, inv)
		observability.SetSpanAttribute(ctx, observability.AttrAttempts, inv.Attempts)
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		return out, err
	})
}

// metricsInvoker records node counters and durations.
func metricsInvoker(next Invoker, m *observability.EngineMetrics) Invoker {
	if m == nil {
		return next
	}
	return InvokerFunc(func(ctx context.Context, inv *Invocation) (graph.Values, error) {
		start := time.Now()
		out, err := next.Invoke(ctx, inv)
		duration := time.Since(start)

		status := observability.StatusOK
		if err != nil {
			status = observability.StatusError
			code := string(errors.CodeOf(err))
			if code == "" {
				code = string(errors.ErrCodeNodeFailed)
			}
			m.RecordNodeError(ctx, inv.Node.Script, code)
		}
		m.RecordNode(ctx, inv.Node.Script, status, duration)
		return out, err
	})
}

// loggingInvoker logs each invocation: debug on success, warn on failure.
func loggingInvoker(next Invoker, log *logger.Logger) Invoker {
	return InvokerFunc(func(ctx context.Context, inv *Invocation) (graph.Values, error) {
		start := time.Now()
		out, err := next.Invoke(ctx, inv)

		fields := logger.NodeFields(inv.PassID, int(inv.Node.ID), inv.Node.Title)
		fields[logger.FieldScript] = inv.Node.Script
		fields = logger.MergeWithDuration(fields, time.Since(start))
		if inv.Attempts > 1 {
			fields["attempts"] = inv.Attempts
		}

		if err != nil {
			log.Warn("node failed", logger.MergeWithError(fields, err))
		} else {
			log.Debug("node processed", fields)
		}
		return out, err
	})
}
