package main

import (
	"context"
	"encoding/json"
	"io"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/nodeflow/component"
	"github.com/kbukum/nodeflow/config"
	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/version"
)

// meterName scopes the engine instruments.
const meterName = "github.com/kbukum/nodeflow/engine"

// stampVersion fills the service version from the build when the config
// leaves it empty. bootstrap.NewApp then copies it into the telemetry
// resource.
func stampVersion(cfg *config.Config) {
	if cfg.Version == "" {
		cfg.Version = version.Short()
	}
}

// engineOptions maps the engine section of cfg onto engine options.
func engineOptions(cfg *config.Config) ([]engine.Option, error) {
	metrics, err := observability.NewEngineMetrics(observability.Meter(meterName))
	if err != nil {
		return nil, err
	}
	return []engine.Option{
		engine.WithMetrics(metrics),
		engine.WithMetadataOptions(cfg.Metadata),
		engine.WithRetry(cfg.Engine.Retry),
		engine.WithPaths(cfg.Paths),
	}, nil
}

// telemetryComponents returns lifecycle hooks for the enabled OTLP exporters.
func telemetryComponents(cfg *config.Config, log *logger.Logger) []component.Component {
	var out []component.Component
	if cfg.Tracing.Enabled {
		var tp *sdktrace.TracerProvider
		out = append(out, component.NewHook("tracing",
			func(ctx context.Context) error {
				var err error
				tp, err = observability.InitTracer(ctx, &cfg.Tracing)
				return err
			},
			func(ctx context.Context) error {
				log.Debug("flushing spans")
				return tp.Shutdown(ctx)
			},
		).WithDescription(component.Description{Type: "telemetry", Details: "otlp traces → " + cfg.Tracing.Endpoint}))
	}
	if cfg.Metrics.Enabled {
		var mp *sdkmetric.MeterProvider
		out = append(out, component.NewHook("metrics",
			func(ctx context.Context) error {
				var err error
				mp, err = observability.InitMeter(ctx, &cfg.Metrics)
				return err
			},
			func(ctx context.Context) error {
				log.Debug("flushing metrics")
				return mp.Shutdown(ctx)
			},
		).WithDescription(component.Description{Type: "telemetry", Details: "otlp metrics → " + cfg.Metrics.Endpoint}))
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
