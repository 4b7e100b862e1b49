package config

import (
	"fmt"

	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/resilience"
	"github.com/kbukum/nodeflow/server"
	"github.com/kbukum/nodeflow/validation"
)

// ServiceName is the default service name and config search key.
const ServiceName = "nodeflow"

// EnvPrefix is the environment variable prefix used by Load.
const EnvPrefix = "NODEFLOW"

// Config is the nodeflow service configuration.
//
//	name: nodeflow
//	environment: production
//	logging:
//	  level: info
//	  format: json
//	paths:
//	  work_dir: /var/lib/nodeflow
//	metadata:
//	  max_history: 50
//	engine:
//	  retry:
//	    max_attempts: 3
//	graphs:
//	  dirs: [./graphs]
//	http:
//	  port: 8080
//	tracing:
//	  enabled: true
//	  endpoint: otel-collector:4318
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Paths    engine.Paths               `yaml:"paths" mapstructure:"paths"`
	Metadata metadata.Options           `yaml:"metadata" mapstructure:"metadata"`
	Engine   EngineConfig               `yaml:"engine" mapstructure:"engine"`
	Graphs   GraphsConfig               `yaml:"graphs" mapstructure:"graphs"`
	HTTP     HTTPConfig                 `yaml:"http" mapstructure:"http"`
	Tracing  observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics  observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// EngineConfig tunes pass execution.
type EngineConfig struct {
	Retry resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
	// DispatchQueue sizes the coordinator's notification queue.
	DispatchQueue int `yaml:"dispatch_queue" mapstructure:"dispatch_queue" validate:"gte=0"`
}

// GraphsConfig locates graph definition files.
type GraphsConfig struct {
	Dirs []string `yaml:"dirs" mapstructure:"dirs"`
}

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	server.Config `yaml:",inline" mapstructure:",squash"`
	// EventsPath is the SSE endpoint for pass notifications.
	EventsPath string `yaml:"events_path" mapstructure:"events_path"`
}

// Default returns the base configuration Load decodes onto.
func Default() Config {
	cfg := Config{
		ServiceConfig: ServiceConfig{Name: ServiceName},
		Metadata:      metadata.DefaultOptions(),
		Engine:        EngineConfig{Retry: resilience.DefaultRetryConfig(), DispatchQueue: 256},
		HTTP: HTTPConfig{
			Config:     server.Config{Enabled: true, Port: 8080},
			EventsPath: "/api/v1/events",
		},
		Tracing: observability.DefaultTracerConfig(ServiceName),
		Metrics: observability.DefaultMeterConfig(ServiceName),
	}
	return cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Metadata.ApplyDefaults()
	c.Engine.Retry.ApplyDefaults()
	if c.Engine.DispatchQueue == 0 {
		c.Engine.DispatchQueue = 256
	}
	if c.Paths.WorkDir == "" {
		c.Paths.WorkDir = "."
	}
	if len(c.Graphs.Dirs) == 0 {
		c.Graphs.Dirs = []string{"./graphs"}
	}
	c.HTTP.ApplyDefaults()
	if c.HTTP.EventsPath == "" {
		c.HTTP.EventsPath = "/api/v1/events"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = c.Name
	}
	if c.Version != "" {
		c.Tracing.ServiceVersion = c.Version
		c.Metrics.ServiceVersion = c.Version
	}
	c.Tracing.Environment = c.Environment
	c.Metrics.Environment = c.Environment
}

// Validate checks the service fields and every tagged section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load reads the nodeflow configuration on top of Default, then applies
// defaults and validates. NODEFLOW_* environment variables override file
// values.
func Load(opts ...LoaderOption) (*Config, error) {
	cfg := Default()
	opts = append([]LoaderOption{WithEnvPrefix(EnvPrefix)}, opts...)
	if err := LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
