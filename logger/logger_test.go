package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(&Config{Level: level, Format: "json"}, "nodeflow", buf)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("invalid json log line %q: %v", line, err)
	}
	return out
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	l := New(&Config{Level: "invalid-level", Format: "json"}, "test")
	if l == nil {
		t.Fatal("expected logger to be created even with invalid level")
	}
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	if l := NewFromEnv("env-svc"); l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "debug").WithComponent("engine")
	l.Info("node processed", NodeFields("p-1", 3, "Blur"))

	out := decodeLine(t, &buf)
	if out["message"] != "node processed" {
		t.Errorf("unexpected message %v", out["message"])
	}
	if out[FieldComponent] != "engine" {
		t.Errorf("expected component=engine, got %v", out[FieldComponent])
	}
	if out[FieldNodeID] != float64(3) {
		t.Errorf("expected node_id=3, got %v", out[FieldNodeID])
	}
	if out[FieldPassID] != "p-1" {
		t.Errorf("expected pass_id=p-1, got %v", out[FieldPassID])
	}
	if out["service"] != "nodeflow" {
		t.Errorf("expected service tag, got %v", out["service"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "warn")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("expected warn to be written")
	}
}

func TestWithContextPassID(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithPassID(context.Background(), "pass-42")
	ctx = ContextWithTraceID(ctx, "trace-1")
	jsonLogger(&buf, "info").WithContext(ctx).Info("hello")

	out := decodeLine(t, &buf)
	if out[FieldPassID] != "pass-42" {
		t.Errorf("expected pass id, got %v", out[FieldPassID])
	}
	if out[FieldTraceID] != "trace-1" {
		t.Errorf("expected trace id, got %v", out[FieldTraceID])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf, "info").WithError(errors.New("boom")).Error("failed")
	out := decodeLine(t, &buf)
	if out["error"] != "boom" {
		t.Errorf("expected error field, got %v", out["error"])
	}
}

func TestNewNop(t *testing.T) {
	NewNop().Error("nothing happens")
}

func TestInitUsesServiceNameOverride(t *testing.T) {
	old := globalLogger
	defer SetGlobalLogger(old)

	Init(Config{Level: "info", Format: "json", ServiceName: "override"}, "nodeflow")
	if GetGlobalLogger().service != "override" {
		t.Errorf("expected override service name, got %q", GetGlobalLogger().service)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "console" || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp to default to true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "debug", Format: "json"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsoleLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: "console", NoColor: true}, "nodeflow", &buf)
	l.Info("pass completed")
	if !strings.Contains(buf.String(), "[NOD][INF]") {
		t.Errorf("expected service and level tags, got %q", buf.String())
	}
}

func TestRegisterAndGet(t *testing.T) {
	defer Reset()
	l := NewNop()
	Register("engine", l)
	if Get("engine") != l {
		t.Error("expected registered logger")
	}
	if Get("unregistered") == nil {
		t.Error("expected fallback logger")
	}
}

func TestFields(t *testing.T) {
	m := Fields("a", 1, "b", "two", 3, "ignored-key", "dangling")
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("unexpected fields %v", m)
	}
	if len(m) != 2 {
		t.Errorf("expected 2 fields, got %d", len(m))
	}
}

func TestErrorAndDurationFields(t *testing.T) {
	ef := ErrorFields("process", errors.New("bad"))
	if ef[FieldOperation] != "process" || ef[FieldError] != "bad" {
		t.Errorf("unexpected error fields %v", ef)
	}
	df := DurationFields("pass", 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("unexpected duration %v", df[FieldDuration])
	}
	merged := MergeWithDuration(MergeWithError(nil, errors.New("x")), time.Second)
	if merged[FieldError] != "x" || merged[FieldDuration] != int64(1000) {
		t.Errorf("unexpected merged fields %v", merged)
	}
}
