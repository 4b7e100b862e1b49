package engine

import (
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/resilience"
	"github.com/kbukum/nodeflow/scheduler"
	"github.com/kbukum/nodeflow/store"
)

// Paths are the directories exposed to units through their UnitContext.
type Paths struct {
	WorkDir    string `mapstructure:"work_dir" yaml:"work_dir"`
	TempDir    string `mapstructure:"temp_dir" yaml:"temp_dir"`
	ScriptsDir string `mapstructure:"scripts_dir" yaml:"scripts_dir"`
}

// Planner computes the execution plan of a pass.
type Planner func(g *graph.Graph, targets []graph.NodeID) (*scheduler.Plan, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l.WithComponent("engine") }
}

// WithMetrics records pass and node instruments.
func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMetadataOptions sets the metadata cleaning options.
func WithMetadataOptions(opts metadata.Options) Option {
	return func(e *Engine) { e.pipeline = metadata.NewPipeline(opts) }
}

// WithRetry retries transient unit failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithPaths sets the directories handed to units.
func WithPaths(p Paths) Option {
	return func(e *Engine) { e.paths = p }
}

// WithStore replaces the engine's output store.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithPlanner replaces the scheduler.
func WithPlanner(p Planner) Option {
	return func(e *Engine) { e.planner = p }
}

// WithObserver registers a pass-completed observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithProgress sets a callback invoked after each scheduled node.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}
