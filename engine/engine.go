package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/resilience"
	"github.com/kbukum/nodeflow/scheduler"
	"github.com/kbukum/nodeflow/store"
)

// Engine executes passes over graphs and owns the output store they fill.
type Engine struct {
	running atomic.Bool
	closed  atomic.Bool

	store    *store.Store
	pipeline *metadata.Pipeline
	planner  Planner
	invoker  Invoker
	retry    resilience.RetryConfig
	paths    Paths
	log      *logger.Logger
	metrics  *observability.EngineMetrics
	progress ProgressFunc

	// nodeMu serializes unit invocation and the store write that follows.
	nodeMu sync.Mutex

	obsMu     sync.RWMutex
	observers []Observer

	initMu sync.Mutex
	units  map[unitKey]graph.Unit
}

type unitKey struct {
	graph *graph.Graph
	node  graph.NodeID
}

// New creates an Engine with an empty output store.
func New(opts ...Option) *Engine {
	e := &Engine{
		pipeline: metadata.NewPipeline(metadata.DefaultOptions()),
		planner:  scheduler.Build,
		retry:    resilience.DefaultRetryConfig(),
		log:      logger.NewNop(),
		units:    make(map[unitKey]graph.Unit),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = store.New(store.WithLogger(e.log))
	}
	e.invoker = tracingInvoker(metricsInvoker(loggingInvoker(retryInvoker(unitInvoker(), e.retry), e.log), e.metrics))
	return e
}

// Store returns the engine's output store.
func (e *Engine) Store() *store.Store { return e.store }

// Busy reports whether a pass is in flight.
func (e *Engine) Busy() bool { return e.running.Load() }

// AddObserver registers a pass-completed observer.
func (e *Engine) AddObserver(o Observer) {
	e.obsMu.Lock()
	e.observers = append(e.observers, o)
	e.obsMu.Unlock()
}

// NodeOutput returns a node's stored outputs without the metadata entry.
func (e *Engine) NodeOutput(id graph.NodeID) (graph.Values, bool) {
	return e.store.Outputs(id)
}

// NodeMetadata returns a copy of a node's outgoing metadata.
func (e *Engine) NodeMetadata(id graph.NodeID) (*metadata.Map, bool) {
	return e.store.Metadata(id)
}

// RunPass executes one pass. A nil targets slice runs a full pass; a
// non-nil one runs a selective pass over targets and their upstream.
func (e *Engine) RunPass(ctx context.Context, g *graph.Graph, env Environment, targets []graph.NodeID) Result {
	mode := scheduler.Full
	if targets != nil {
		mode = scheduler.Selective
	}
	res := Result{Mode: mode, Nodes: map[graph.NodeID]NodeResult{}}

	if e.closed.Load() {
		res.Err = errors.Closed("engine")
		res.summarize()
		return res
	}
	if !e.running.CompareAndSwap(false, true) {
		e.metrics.RecordRejectedPass(ctx, string(mode), observability.StatusBusy)
		res.Err = errors.Busy()
		res.summarize()
		return res
	}
	defer e.running.Store(false)

	if g.Len() == 0 {
		e.metrics.RecordRejectedPass(ctx, string(mode), observability.StatusError)
		res.Err = errors.EmptyGraph()
		res.summarize()
		return res
	}

	res = e.run(ctx, g, env, targets, mode)
	if res.Err == nil {
		e.notify(PassEvent{Graph: g, Result: res})
	}
	return res
}

// RunChanged runs a selective pass over the graph's dirty nodes.
func (e *Engine) RunChanged(ctx context.Context, g *graph.Graph, env Environment) Result {
	targets := []graph.NodeID{}
	if g != nil {
		targets = append(targets, g.NodesToProcess()...)
	}
	return e.RunPass(ctx, g, env, targets)
}

// RunBatch runs a full pass per environment, in order. It stops early when
// ctx is done; results gathered so far are returned.
func (e *Engine) RunBatch(ctx context.Context, g *graph.Graph, envs []Environment) []Result {
	results := make([]Result, 0, len(envs))
	for _, env := range envs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.RunPass(ctx, g, env, nil))
	}
	return results
}

// Close runs unit cleanup hooks and releases the store. Passes started
// after Close fail with a Closed error.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.initMu.Lock()
	units := e.units
	e.units = make(map[unitKey]graph.Unit)
	e.initMu.Unlock()

	var errs []error
	for key, u := range units {
		c, ok := u.(graph.Cleaner)
		if !ok {
			continue
		}
		if err := c.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("cleanup node %d: %w", key.node, err))
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("engine close: %v", errs)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, g *graph.Graph, env Environment, targets []graph.NodeID, mode scheduler.Mode) (res Result) {
	start := time.Now()
	res = Result{
		PassID: uuid.NewString(),
		Mode:   mode,
		Nodes:  map[graph.NodeID]NodeResult{},
	}

	pc := observability.NewPassContext(res.PassID, string(mode), g.Name, e.metrics)
	ctx, span := pc.Start(ctx)
	ctx = logger.ContextWithPassID(ctx, res.PassID)
	log := e.log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.PassAborted(errors.FromPanic(r))
		}
		res.Duration = time.Since(start)
		res.summarize()
		pc.End(ctx, span, res.ProcessedCount, res.FailedCount, res.CachedCount, res.Err)

		fields := logger.Fields(
			logger.FieldMode, string(mode),
			logger.FieldGraph, g.Name,
			"processed", res.ProcessedCount,
			"failed", res.FailedCount,
			"cached", res.CachedCount,
		)
		fields = logger.MergeWithDuration(fields, res.Duration)
		if res.Err != nil {
			log.Error("pass aborted", logger.MergeWithError(fields, res.Err))
			return
		}
		log.Info("pass completed", fields)
	}()

	if mode == scheduler.Full {
		g.MarkAllForProcessing()
		g.ClearProcessedFlags()
		e.store.Clear()
	} else {
		for _, id := range targets {
			if n, ok := g.Node(id); ok {
				n.SetNeedsProcessing(true)
			}
		}
	}

	plan, err := e.planner(g, targets)
	if err != nil {
		res.Err = errors.PassAborted(err)
		return res
	}
	res.Order = plan.Order
	if len(plan.Forced) > 0 {
		log.Debug("cycle broken by forced scheduling", logger.Fields("forced", plan.Forced))
	}

	uc := &unitContext{engine: e, graph: g, env: env}
	stamp := environmentStamp(g, env)
	for i, id := range plan.Order {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		var nr NodeResult
		if mode == scheduler.Selective && !n.NeedsProcessing() && e.store.Has(id) {
			n.MarkReused()
			nr = NodeResult{ID: id, Title: n.Title, Script: n.Script, Status: NodeCached}
			e.metrics.RecordNode(ctx, n.Script, observability.StatusCached, 0)
		} else {
			nr = e.processNode(ctx, res.PassID, uc, n, stamp)
		}
		res.add(nr)
		if e.progress != nil {
			e.progress(i+1, len(plan.Order), nr)
		}
	}
	return res
}

// processNode runs one node. Every failure inside, including panics in
// unit hooks, stays local to the node.
func (e *Engine) processNode(ctx context.Context, passID string, uc *unitContext, n *graph.Node, stamp *metadata.Map) (nr NodeResult) {
	start := time.Now()
	nr = NodeResult{ID: n.ID, Title: n.Title, Script: n.Script}
	n.ResetError()

	var b binding
	var outputs graph.Values
	defer func() {
		if r := recover(); r != nil {
			e.failNodeLocked(n, &nr, fmt.Errorf("unit panicked: %w", errors.FromPanic(r)))
			outputs = nil
		}
		b.release(e.log, outputs)
		nr.Duration = time.Since(start)
	}()

	if n.Unit == nil {
		e.failNodeLocked(n, &nr, errors.UnitMissing(int(n.ID)))
		return nr
	}
	if err := e.initialize(uc, n); err != nil {
		e.failNodeLocked(n, &nr, fmt.Errorf("initialize: %w", err))
		return nr
	}

	b = e.bind(uc.graph, n, true)
	upstream := e.pipeline.Merge(b.metadata...)
	e.pipeline.Extract(n.Unit, upstream)

	outputs = e.invokeAndStore(ctx, passID, uc, n, b.inputs, upstream, stamp, &nr)
	return nr
}

// invokeAndStore runs the unit and writes its outputs under nodeMu. It
// returns the stored outputs, or nil when the node failed.
func (e *Engine) invokeAndStore(ctx context.Context, passID string, uc *unitContext, n *graph.Node, inputs graph.Values, upstream, stamp *metadata.Map, nr *NodeResult) graph.Values {
	e.nodeMu.Lock()
	defer e.nodeMu.Unlock()

	inv := &Invocation{PassID: passID, Node: n, Inputs: inputs, Context: uc}
	out, err := e.invoker.Invoke(ctx, inv)
	nr.Attempts = inv.Attempts
	if err != nil {
		e.failNode(n, nr, err)
		return nil
	}

	entry := out.Clone()
	if entry == nil {
		entry = graph.Values{}
	}
	entry[store.MetadataKey] = e.pipeline.Outgoing(n.Unit, upstream, stamp)
	e.store.Put(n.ID, entry)
	delete(entry, store.MetadataKey)
	n.MarkProcessed(entry)

	nr.Status = NodeProcessed
	return entry
}

// failNodeLocked is failNode under nodeMu.
func (e *Engine) failNodeLocked(n *graph.Node, nr *NodeResult, err error) {
	e.nodeMu.Lock()
	defer e.nodeMu.Unlock()
	e.failNode(n, nr, err)
}

// failNode flags n, drops its store entry and records the failure. The
// caller holds nodeMu.
func (e *Engine) failNode(n *graph.Node, nr *NodeResult, err error) {
	n.MarkFailed(err.Error())
	e.store.Remove(n.ID)
	nr.Status = NodeFailed
	nr.Error = err
	nr.Message = err.Error()
}

// initialize calls a unit's Initialize once per engine, graph and node.
func (e *Engine) initialize(uc *unitContext, n *graph.Node) error {
	key := unitKey{graph: uc.graph, node: n.ID}
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if u, ok := e.units[key]; ok && sameUnit(u, n.Unit) {
		return nil
	}
	if init, ok := n.Unit.(graph.Initializer); ok {
		if err := init.Initialize(uc); err != nil {
			return err
		}
	}
	e.units[key] = n.Unit
	return nil
}

func sameUnit(a, b graph.Unit) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (e *Engine) notify(ev PassEvent) {
	e.obsMu.RLock()
	observers := append([]Observer(nil), e.observers...)
	e.obsMu.RUnlock()
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("observer panicked", logger.Fields(
						logger.FieldPassID, ev.Result.PassID,
						logger.FieldError, fmt.Sprint(r),
					))
				}
			}()
			o.PassCompleted(ev)
		}()
	}
}

func environmentStamp(g *graph.Graph, env Environment) *metadata.Map {
	name := env.GraphName
	if name == "" {
		name = g.Name
	}
	return metadata.FromPairs(metadata.KeyGraphName, name, metadata.KeyIndex, env.Index)
}
