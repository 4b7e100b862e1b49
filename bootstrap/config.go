package bootstrap

import (
	"github.com/kbukum/nodeflow/config"
)

// Config is the constraint for application configuration types. A struct
// embedding config.ServiceConfig that defines its own ApplyDefaults and
// Validate satisfies it.
//
//	type ServeConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    HTTP server.Config `yaml:"http" mapstructure:"http"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
