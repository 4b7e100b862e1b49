package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/nodeflow/server"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.ServiceName != "svc" || cfg.Logging.Level != "info" {
			t.Errorf("unexpected logging defaults %+v", cfg.Logging)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	valid := func(env string) ServiceConfig {
		c := ServiceConfig{Name: "svc", Environment: env}
		c.Logging.ApplyDefaults()
		return c
	}
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid development", valid("development"), ""},
		{"valid production", valid("production"), ""},
		{"missing name", func() ServiceConfig { c := valid("staging"); c.Name = ""; return c }(), "name"},
		{"invalid environment", valid("qa"), "environment"},
		{"bad logging", func() ServiceConfig { c := valid("staging"); c.Logging.Level = "loud"; return c }(), "logging"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(WithFileSystem(&mockFS{}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != ServiceName || cfg.HTTP.Port != 8080 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Engine.Retry.MaxAttempts != 1 || cfg.Engine.Retry.Enabled() {
		t.Errorf("retries should be off by default: %+v", cfg.Engine.Retry)
	}
	if !cfg.Metadata.MergeDuplicateKeys || cfg.Metadata.StampEnvironment {
		t.Errorf("unexpected metadata defaults %+v", cfg.Metadata)
	}
	if cfg.Tracing.Enabled || cfg.Tracing.ServiceName != ServiceName {
		t.Errorf("unexpected tracing defaults %+v", cfg.Tracing)
	}
	if !slices.Equal(cfg.Graphs.Dirs, []string{"./graphs"}) {
		t.Errorf("graph dirs = %v", cfg.Graphs.Dirs)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: nodeflow-test
environment: staging
version: "1.2.0"
logging:
  level: debug
  format: json
paths:
  work_dir: /srv/nodeflow
  temp_dir: /tmp/nodeflow
metadata:
  max_history: 10
  stamp_environment: true
engine:
  retry:
    max_attempts: 3
    initial_backoff: 20ms
graphs:
  dirs: [/etc/nodeflow/graphs]
http:
  port: 9000
  shutdown_timeout: 3s
`)
	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "nodeflow-test" || cfg.Environment != "staging" || cfg.Debug {
		t.Errorf("service fields %+v", cfg.ServiceConfig)
	}
	if cfg.Paths.WorkDir != "/srv/nodeflow" || cfg.Paths.TempDir != "/tmp/nodeflow" {
		t.Errorf("paths %+v", cfg.Paths)
	}
	if cfg.Metadata.MaxHistory != 10 || !cfg.Metadata.StampEnvironment || !cfg.Metadata.MergeDuplicateKeys {
		t.Errorf("metadata %+v", cfg.Metadata)
	}
	if cfg.Engine.Retry.MaxAttempts != 3 || cfg.Engine.Retry.InitialBackoff != 20*time.Millisecond {
		t.Errorf("retry %+v", cfg.Engine.Retry)
	}
	if cfg.HTTP.Port != 9000 || cfg.HTTP.ShutdownTimeout != 3*time.Second || cfg.HTTP.EventsPath == "" || cfg.HTTP.MaxBodySize != "10MB" {
		t.Errorf("http %+v", cfg.HTTP)
	}
	if cfg.Tracing.ServiceVersion != "1.2.0" || cfg.Tracing.Environment != "staging" {
		t.Errorf("tracing %+v", cfg.Tracing)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "http:\n  port: 9000\n")
	t.Setenv("NODEFLOW_HTTP_PORT", "9100")
	t.Setenv("NODEFLOW_ENGINE_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("HTTP_PORT", "1")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9100 {
		t.Errorf("port = %d, want the prefixed variable to win", cfg.HTTP.Port)
	}
	if cfg.Engine.Retry.MaxAttempts != 4 {
		t.Errorf("max attempts = %d", cfg.Engine.Retry.MaxAttempts)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "NODEFLOW_PATHS_SCRIPTS_DIR=/opt/scripts\n")
	t.Cleanup(func() { os.Unsetenv("NODEFLOW_PATHS_SCRIPTS_DIR") })

	cfg, err := Load(WithConfigFile(filepath.Join(dir, "missing.yml")), WithEnvFile(env))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.ScriptsDir != "/opt/scripts" {
		t.Errorf("scripts dir = %q", cfg.Paths.ScriptsDir)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"retry attempts":         "engine:\n  retry:\n    max_attempts: 50\n",
		"sample rate":            "tracing:\n  sample_rate: 2\n",
		"port":                   "http:\n  port: 70000\n",
		"environment":            "environment: qa\n",
		"tracing needs endpoint": "tracing:\n  enabled: true\n  endpoint: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yml", body)
			if _, err := Load(WithConfigFile(path)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", "http: [unterminated\n")
	var cfg Config
	if err := LoadConfig(ServiceName, &cfg, WithConfigFile(path)); err == nil {
		t.Error("expected a parse error")
	}
}

func TestLoadConfig_CustomStruct(t *testing.T) {
	type extended struct {
		ServiceConfig `yaml:",inline" mapstructure:",squash"`
		Feature       string `mapstructure:"feature"`
	}
	path := writeFile(t, t.TempDir(), "config.yml", "name: ext\nfeature: beta\n")
	var cfg extended
	if err := LoadConfig("ext", &cfg, WithConfigFile(path), WithEnvPrefix("EXT_TEST")); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "ext" || cfg.Feature != "beta" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.GetServiceConfig().Name != "ext" {
		t.Error("GetServiceConfig should return the embedded config")
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(string) error    { return nil }

func TestResolver(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/nodeflow/config.yml": true,
		"./config.yml":              true,
		"./.env":                    true,
	}}
	r := &Resolver{FileSystem: fs}

	files := r.ResolveFiles("nodeflow", LoaderConfig{})
	if files.ConfigFile != "./cmd/nodeflow/config.yml" {
		t.Errorf("config file = %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("env file = %q", files.EnvFile)
	}

	explicit := r.ResolveFiles("nodeflow", LoaderConfig{ConfigFile: "/etc/nf.yml"})
	if explicit.ConfigFile != "/etc/nf.yml" {
		t.Errorf("explicit path should win, got %q", explicit.ConfigFile)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("HTTP_SHUTDOWN_TIMEOUT")
	for _, want := range []string{"http_shutdown_timeout", "http.shutdown.timeout", "http.shutdown_timeout"} {
		if !slices.Contains(got, want) {
			t.Errorf("missing variant %q in %v", want, got)
		}
	}
	if got := envKeyVariants("NAME"); !slices.Equal(got, []string{"name"}) {
		t.Errorf("single part variants = %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithConfigFile("a.yml")(&lc)
	WithEnvFile("b.env")(&lc)
	WithEnvPrefix("nodeflow_")(&lc)
	if lc.ConfigFile != "a.yml" || lc.EnvFile != "b.env" || lc.EnvPrefix != "NODEFLOW" {
		t.Errorf("unexpected loader config %+v", lc)
	}
}

func TestHTTPConfigAddr(t *testing.T) {
	if got := (HTTPConfig{Config: server.Config{Host: "127.0.0.1", Port: 8080}}).Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
}
