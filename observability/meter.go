package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/nodeflow/logger"
)

// MeterName is the instrumentation scope used for engine instruments.
const MeterName = "github.com/kbukum/nodeflow/engine"

// Status attribute values.
const (
	StatusOK     = "ok"
	StatusError  = "error"
	StatusCached = "cached"
	StatusBusy   = "busy"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// Enabled turns on the OTLP metric exporter.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ServiceName is the name of the service.
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// ServiceVersion is the version of the service.
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`
	// Environment is the deployment environment (dev, staging, prod).
	Environment string `mapstructure:"environment" yaml:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"`
	// Insecure allows insecure connections (for development).
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// EngineMetrics holds the instruments recorded by the execution engine.
// A nil *EngineMetrics records nothing.
type EngineMetrics struct {
	passTotal    metric.Int64Counter
	passDuration metric.Float64Histogram
	passActive   metric.Int64UpDownCounter
	nodeTotal    metric.Int64Counter
	nodeDuration metric.Float64Histogram
	nodeErrors   metric.Int64Counter
}

// NewEngineMetrics creates engine instruments on the given meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	passTotal, err := meter.Int64Counter("pass.total",
		metric.WithDescription("Total number of passes by mode and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pass.total counter: %w", err)
	}

	passDuration, err := meter.Float64Histogram("pass.duration",
		metric.WithDescription("Duration of passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pass.duration histogram: %w", err)
	}

	passActive, err := meter.Int64UpDownCounter("pass.active",
		metric.WithDescription("Number of passes currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pass.active gauge: %w", err)
	}

	nodeTotal, err := meter.Int64Counter("node.total",
		metric.WithDescription("Total node invocations by script and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.total counter: %w", err)
	}

	nodeDuration, err := meter.Float64Histogram("node.duration",
		metric.WithDescription("Duration of node invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.duration histogram: %w", err)
	}

	nodeErrors, err := meter.Int64Counter("node.errors",
		metric.WithDescription("Node failures by script and error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.errors counter: %w", err)
	}

	return &EngineMetrics{
		passTotal:    passTotal,
		passDuration: passDuration,
		passActive:   passActive,
		nodeTotal:    nodeTotal,
		nodeDuration: nodeDuration,
		nodeErrors:   nodeErrors,
	}, nil
}

// RecordPassStart increments the active pass count.
func (m *EngineMetrics) RecordPassStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.passActive.Add(ctx, 1)
}

// RecordPassEnd decrements active passes and records the completed pass.
func (m *EngineMetrics) RecordPassEnd(ctx context.Context, mode, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.passActive.Add(ctx, -1)
	m.passTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
	m.passDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordRejectedPass counts a pass that never started (busy or empty graph).
func (m *EngineMetrics) RecordRejectedPass(ctx context.Context, mode, status string) {
	if m == nil {
		return
	}
	m.passTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
}

// RecordNode records one node outcome. Cached nodes carry no duration.
func (m *EngineMetrics) RecordNode(ctx context.Context, script, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.nodeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("script", script),
		attribute.String("status", status),
	))
	if status == StatusCached {
		return
	}
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("script", script),
	))
}

// RecordNodeError records a node failure by script and error code.
func (m *EngineMetrics) RecordNodeError(ctx context.Context, script, code string) {
	if m == nil {
		return
	}
	m.nodeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("script", script),
		attribute.String("code", code),
	))
}
