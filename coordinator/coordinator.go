package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/scheduler"
)

// Events are the notifications a Coordinator posts through its Dispatcher.
// Nil callbacks are skipped.
type Events struct {
	// OnStateChanged reports whether a pass is running.
	OnStateChanged func(running bool)
	// OnStatus carries a human-readable status line.
	OnStatus func(status string)
	// OnProgress is posted after each scheduled node.
	OnProgress func(done, total int, nr engine.NodeResult)
	// OnCompleted is posted for every finished or rejected pass.
	OnCompleted func(res engine.Result)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDispatcher sets where notifications run. The default is Inline.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.dispatch = d }
}

// WithEvents sets the notification callbacks.
func WithEvents(ev Events) Option {
	return func(c *Coordinator) { c.events = ev }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.base = l }
}

// WithEngineOptions configures the engine the coordinator owns.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *Coordinator) { c.engineOpts = append(c.engineOpts, opts...) }
}

// Coordinator is an asynchronous single-flight facade over an Engine.
type Coordinator struct {
	engine     *engine.Engine
	engineOpts []engine.Option
	dispatch   Dispatcher
	events     Events
	base       *logger.Logger
	log        *logger.Logger

	running  atomic.Bool
	canceled atomic.Bool

	// mu guards closed and the in-flight WaitGroup.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	lastMu sync.RWMutex
	last   *engine.Result
}

// New creates a Coordinator and the Engine it drives.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		dispatch: Inline(),
		base:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.base.WithComponent("coordinator")
	engineOpts := append([]engine.Option{engine.WithLogger(c.base)}, c.engineOpts...)
	engineOpts = append(engineOpts, engine.WithProgress(c.progress))
	c.engine = engine.New(engineOpts...)
	return c
}

// Engine returns the underlying engine for queries.
func (c *Coordinator) Engine() *engine.Engine { return c.engine }

// Running reports whether a pass is outstanding.
func (c *Coordinator) Running() bool { return c.running.Load() }

// Canceled reports whether Cancel was called since the current or last
// pass started.
func (c *Coordinator) Canceled() bool { return c.canceled.Load() }

// LastResult returns the result of the most recent completed pass.
func (c *Coordinator) LastResult() (engine.Result, bool) {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	if c.last == nil {
		return engine.Result{}, false
	}
	return *c.last, true
}

// RunPassAsync starts a pass in the background. A nil targets slice runs a
// full pass. When a pass is already outstanding the returned Future is
// already complete with a Busy error.
func (c *Coordinator) RunPassAsync(ctx context.Context, g *graph.Graph, env engine.Environment, targets []graph.NodeID) *Future {
	start := time.Now()
	mode := scheduler.Full
	if targets != nil {
		mode = scheduler.Selective
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.reject(mode, start, errors.Closed("coordinator"))
	}
	if !c.running.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return c.reject(mode, start, errors.Busy())
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.canceled.Store(false)
	name := "<nil>"
	if g != nil {
		name = g.Name
	}
	c.post(func() {
		c.emitState(true)
		c.emitStatus(fmt.Sprintf("processing %s (%s pass)", name, mode))
	})

	f := newFuture()
	go func() {
		defer c.wg.Done()
		res := c.engine.RunPass(context.WithoutCancel(ctx), g, env, targets)
		c.finish(res)
		f.complete(res)
	}()
	return f
}

// RunChangedAsync starts a selective pass over the graph's dirty nodes.
func (c *Coordinator) RunChangedAsync(ctx context.Context, g *graph.Graph, env engine.Environment) *Future {
	targets := []graph.NodeID{}
	if g != nil {
		targets = append(targets, g.NodesToProcess()...)
	}
	return c.RunPassAsync(ctx, g, env, targets)
}

// Cancel requests cancellation. It never interrupts a running unit and
// outputs already stored are kept; callers observe Canceled between passes.
func (c *Coordinator) Cancel() {
	c.canceled.Store(true)
	c.log.Info("cancel requested", logger.Fields("running", c.running.Load()))
	c.post(func() { c.emitStatus("cancel requested") })
}

// Close waits for the outstanding pass and closes the engine. Later
// requests complete with a Closed error.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	return c.engine.Close()
}

// CheckHealth implements observability.HealthChecker.
func (c *Coordinator) CheckHealth(_ context.Context) observability.Health {
	h := observability.Health{
		Name:   "coordinator",
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"running":  strconv.FormatBool(c.running.Load()),
			"canceled": strconv.FormatBool(c.canceled.Load()),
		},
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		h.Status = observability.HealthStatusDown
		h.Message = "closed"
		return h
	}
	if last, ok := c.LastResult(); ok {
		h.Details["last_pass"] = last.PassID
		h.Message = last.Message
		if last.Err != nil && !errors.Is(last.Err, errors.ErrCodeBusy) {
			h.Status = observability.HealthStatusDegraded
		}
	}
	return h
}

func (c *Coordinator) reject(mode scheduler.Mode, start time.Time, err error) *Future {
	res := engine.Result{
		Mode:     mode,
		Nodes:    map[graph.NodeID]engine.NodeResult{},
		Err:      err,
		Message:  err.Error(),
		Duration: time.Since(start),
	}
	c.log.Warn("pass rejected", logger.MergeWithError(logger.Fields(logger.FieldMode, string(mode)), err))
	c.post(func() {
		c.emitStatus(res.Message)
		c.emitCompleted(res)
	})
	return completedFuture(res)
}

func (c *Coordinator) finish(res engine.Result) {
	c.lastMu.Lock()
	c.last = &res
	c.lastMu.Unlock()

	// Read canceled before clearing running: the next pass resets it.
	status := res.Message
	if c.canceled.Load() {
		status += " (canceled)"
	}
	c.running.Store(false)
	c.post(func() {
		c.emitCompleted(res)
		c.emitStatus(status)
		c.emitState(false)
	})
}

func (c *Coordinator) progress(done, total int, nr engine.NodeResult) {
	if c.events.OnProgress == nil {
		return
	}
	c.post(func() { c.events.OnProgress(done, total, nr) })
}

// post hands fn to the dispatcher; a panicking callback is logged.
func (c *Coordinator) post(fn func()) {
	c.dispatch.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("notification callback panicked", logger.Fields(logger.FieldError, fmt.Sprint(r)))
			}
		}()
		fn()
	})
}

func (c *Coordinator) emitState(running bool) {
	if c.events.OnStateChanged != nil {
		c.events.OnStateChanged(running)
	}
}

func (c *Coordinator) emitStatus(s string) {
	if c.events.OnStatus != nil {
		c.events.OnStatus(s)
	}
}

func (c *Coordinator) emitCompleted(res engine.Result) {
	if c.events.OnCompleted != nil {
		c.events.OnCompleted(res)
	}
}
