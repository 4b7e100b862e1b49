package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kbukum/nodeflow/security"
	"github.com/kbukum/nodeflow/server/middleware"
)

// Config holds HTTP server configuration.
type Config struct {
	Enabled         bool                  `yaml:"enabled" mapstructure:"enabled"`
	Host            string                `yaml:"host" mapstructure:"host"`
	Port            int                   `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration         `yaml:"read_timeout" mapstructure:"read_timeout"`
	IdleTimeout     time.Duration         `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration         `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodySize     string                `yaml:"max_body_size" mapstructure:"max_body_size"` // e.g. "10MB"
	CORS            middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`
	TLS             security.TLSConfig    `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults sets default values for unset fields. There is no write
// timeout: SSE streams are long-lived.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "10MB"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-Id"}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 || c.IdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("http timeouts must be non-negative")
	}
	return c.TLS.Validate()
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
