// Package observability wires OpenTelemetry tracing and metrics into the
// execution engine.
//
// Every pass opens a "nodeflow.pass" span with one "nodeflow.node" child
// per executed node. EngineMetrics records pass and node counters and
// durations:
//
//	mp, err := observability.InitMeter(ctx, &cfg.Metrics)
//	defer mp.Shutdown(ctx)
//
//	m, err := observability.NewEngineMetrics(observability.Meter(observability.MeterName))
//	eng := engine.New(engine.WithMetrics(m))
//
// Health reports are aggregated from HealthChecker implementations and
// served by the HTTP adapter.
package observability
