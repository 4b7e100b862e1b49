package bootstrap

import (
	"io"
	"time"

	"github.com/kbukum/nodeflow/logger"
)

// Option configures the App during creation.
// Options are non-generic so they can be used with any config type.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout *time.Duration
	output          io.Writer
	quiet           bool
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the application.
// If not set, the logger is built from the config's Logging field.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}

// WithSummaryOutput sets where the startup summary is written. The default
// is stdout.
func WithSummaryOutput(w io.Writer) Option {
	return func(o *appOptions) {
		o.output = w
	}
}

// WithQuiet suppresses the startup summary.
func WithQuiet() Option {
	return func(o *appOptions) {
		o.quiet = true
	}
}
