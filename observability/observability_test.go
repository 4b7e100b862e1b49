package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func manualMetrics(t *testing.T) (*EngineMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewEngineMetrics(mp.Meter(MeterName))
	if err != nil {
		t.Fatalf("NewEngineMetrics: %v", err)
	}
	return m, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, not an int64 sum", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("nodeflow")

	if cfg.ServiceName != "nodeflow" {
		t.Errorf("expected ServiceName 'nodeflow', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if cfg.Enabled {
		t.Error("tracing should be off by default")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("nodeflow")

	if cfg.ServiceName != "nodeflow" {
		t.Errorf("expected ServiceName 'nodeflow', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestSampler(t *testing.T) {
	if sampler(1.0).Description() != sdktrace.AlwaysSample().Description() {
		t.Error("rate 1 should always sample")
	}
	if sampler(0).Description() != sdktrace.NeverSample().Description() {
		t.Error("rate 0 should never sample")
	}
	if sampler(0.5).Description() != sdktrace.TraceIDRatioBased(0.5).Description() {
		t.Error("rate 0.5 should be ratio based")
	}
}

func TestNewEngineMetrics_Noop(t *testing.T) {
	m, err := NewEngineMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordPassStart(ctx)
	m.RecordPassEnd(ctx, "full", StatusOK, 100*time.Millisecond)
	m.RecordRejectedPass(ctx, "full", StatusBusy)
	m.RecordNode(ctx, "scale", StatusOK, time.Millisecond)
	m.RecordNodeError(ctx, "scale", "NODE_FAILED")
}

func TestEngineMetrics_NilIsSafe(t *testing.T) {
	var m *EngineMetrics
	ctx := context.Background()
	m.RecordPassStart(ctx)
	m.RecordPassEnd(ctx, "full", StatusOK, time.Second)
	m.RecordNode(ctx, "x", StatusOK, time.Second)
	m.RecordNodeError(ctx, "x", "E")
	m.RecordRejectedPass(ctx, "full", StatusBusy)
}

func TestEngineMetrics_Counts(t *testing.T) {
	m, reader := manualMetrics(t)
	ctx := context.Background()

	m.RecordNode(ctx, "scale", StatusOK, time.Millisecond)
	m.RecordNode(ctx, "scale", StatusError, time.Millisecond)
	m.RecordNode(ctx, "constant", StatusCached, 0)
	m.RecordNodeError(ctx, "scale", "NODE_FAILED")
	m.RecordPassStart(ctx)
	m.RecordPassEnd(ctx, "selective", StatusOK, time.Millisecond)

	if got := sumOf(t, reader, "node.total"); got != 3 {
		t.Errorf("node.total = %d, want 3", got)
	}
	if got := sumOf(t, reader, "node.errors"); got != 1 {
		t.Errorf("node.errors = %d, want 1", got)
	}
	if got := sumOf(t, reader, "pass.total"); got != 1 {
		t.Errorf("pass.total = %d, want 1", got)
	}
	if got := sumOf(t, reader, "pass.active"); got != 0 {
		t.Errorf("pass.active = %d, want 0", got)
	}
}

func TestPassContext_StartEnd(t *testing.T) {
	exporter := recordingProvider(t)
	m, reader := manualMetrics(t)

	pc := NewPassContext("pass-1", "full", "demo", m)
	ctx, span := pc.Start(context.Background())

	if got := PassContextFromContext(ctx); got != pc {
		t.Fatal("expected pass context in ctx")
	}
	pc.End(ctx, span, 3, 1, 0, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != SpanPass {
		t.Errorf("expected span %q, got %q", SpanPass, spans[0].Name)
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[AttrPassID] != "pass-1" || attrs[AttrMode] != "full" || attrs[AttrGraph] != "demo" {
		t.Errorf("unexpected attributes %v", attrs)
	}
	if attrs[AttrProcessed] != "3" || attrs[AttrStatus] != StatusOK {
		t.Errorf("unexpected counters %v", attrs)
	}
	if got := sumOf(t, reader, "pass.total"); got != 1 {
		t.Errorf("pass.total = %d, want 1", got)
	}
}

func TestPassContext_EndWithError(t *testing.T) {
	exporter := recordingProvider(t)

	pc := NewPassContext("pass-2", "full", "", nil)
	ctx, span := pc.Start(context.Background())
	pc.End(ctx, span, 0, 0, 0, fmt.Errorf("scheduler exploded"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestPassContextFromContext_NotSet(t *testing.T) {
	if PassContextFromContext(context.Background()) != nil {
		t.Error("expected nil")
	}
}

func TestPassContext_Duration(t *testing.T) {
	pc := NewPassContext("p", "full", "", nil)
	time.Sleep(5 * time.Millisecond)
	if pc.Duration() < 5*time.Millisecond {
		t.Errorf("expected duration >= 5ms, got %v", pc.Duration())
	}
}

func TestStartSpan_Nested(t *testing.T) {
	exporter := recordingProvider(t)

	ctx, parent := StartSpan(context.Background(), SpanPass)
	_, child := StartSpan(ctx, SpanNode)
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("expected node span to be a child of the pass span")
	}
}

func TestSetSpanAttribute(t *testing.T) {
	exporter := recordingProvider(t)

	ctx, span := StartSpan(context.Background(), "test-attrs")
	SetSpanAttribute(ctx, "string-key", "value")
	SetSpanAttribute(ctx, "int-key", 42)
	SetSpanAttribute(ctx, "int64-key", int64(100))
	SetSpanAttribute(ctx, "float-key", 3.14)
	SetSpanAttribute(ctx, "bool-key", true)
	SetSpanAttribute(ctx, "string-slice-key", []string{"a", "b"})
	SetSpanAttribute(ctx, "unsupported-key", struct{}{})
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if n := len(spans[0].Attributes); n != 6 {
		t.Errorf("expected 6 attributes, got %d", n)
	}
}

func TestSetSpanAttributeNoSpan(t *testing.T) {
	SetSpanAttribute(context.Background(), "key", "value")
}

func TestSetSpanError(t *testing.T) {
	exporter := recordingProvider(t)

	ctx, span := StartSpan(context.Background(), "test-error")
	SetSpanError(ctx, fmt.Errorf("test error"))
	SetSpanError(ctx, nil)
	span.End()

	spans := exporter.GetSpans()
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
}

func TestSetSpanErrorNoSpan(t *testing.T) {
	SetSpanError(context.Background(), fmt.Errorf("no span error"))
}

type fixedChecker Health

func (c fixedChecker) CheckHealth(context.Context) Health { return Health(c) }

func TestCheck_Aggregates(t *testing.T) {
	sh := Check(context.Background(), "nodeflow", "1.0.0",
		fixedChecker{Name: "coordinator", Status: HealthStatusUp},
		nil,
		fixedChecker{Name: "events", Status: HealthStatusDegraded},
	)
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", sh.Status)
	}
	if len(sh.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(sh.Components))
	}
	if sh.IsUp() {
		t.Error("degraded service is not up")
	}
}

func TestServiceHealth_DegradedDoesNotOverrideDown(t *testing.T) {
	sh := NewServiceHealth("svc", "1.0.0")
	sh.AddComponent(Health{Name: "a", Status: HealthStatusDown})
	sh.AddComponent(Health{Name: "b", Status: HealthStatusDegraded})

	if sh.Status != HealthStatusDown {
		t.Errorf("expected status down, got %s", sh.Status)
	}
}

func TestInitTracer(t *testing.T) {
	cfg := DefaultTracerConfig("nodeflow-test")
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	tp, err := InitTracer(context.Background(), &cfg)
	if err != nil {
		// resource.Default may carry a different semconv schema URL.
		t.Skipf("InitTracer failed (schema conflict): %v", err)
	}
	_ = tp.Shutdown(context.Background())
}

func TestInitMeter(t *testing.T) {
	cfg := DefaultMeterConfig("nodeflow-test")
	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	mp, err := InitMeter(context.Background(), &cfg)
	if err != nil {
		t.Skipf("InitMeter failed (schema conflict): %v", err)
	}
	_ = mp.Shutdown(context.Background())
}
