package config

import (
	"slices"

	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/validation"
)

// Environments accepted by ServiceConfig.
var validEnvironments = []string{"development", "staging", "production"}

// ServiceConfig holds the fields every nodeflow binary shares. Embed it
// with squash so its keys sit at the top level:
//
//	type MyConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	}
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// GetServiceConfig returns the embedded ServiceConfig.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig {
	return c
}

// ApplyDefaults fills the environment and logging defaults. Development
// turns debug on.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
}

// Validate checks the name, environment and logging settings.
func (c *ServiceConfig) Validate() error {
	v := validation.New()
	v.Required("name", c.Name)
	v.Custom(slices.Contains(validEnvironments, c.Environment), "environment",
		"must be one of [development, staging, production]")
	if err := c.Logging.Validate(); err != nil {
		v.AddError("logging", err.Error())
	}
	return v.Validate()
}
