package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/resilience"
	"github.com/kbukum/nodeflow/scheduler"
	"github.com/kbukum/nodeflow/store"
)

// fnUnit is a configurable unit for engine tests.
type fnUnit struct {
	ins, outs []string
	process   func(ctx context.Context, in graph.Values, uc graph.UnitContext) (graph.Values, error)
	extract   func(*metadata.Map)
	inject    func(*metadata.Map) *metadata.Map
	generate  func(*metadata.Map) *metadata.Map
	params    map[string]any
	calls     atomic.Int32
	mu        sync.Mutex
	seen      []graph.Values
}

func ports(names []string) []graph.PortDefinition {
	out := make([]graph.PortDefinition, len(names))
	for i, n := range names {
		out[i] = graph.PortDefinition{Name: n, DataType: "any"}
	}
	return out
}

func (u *fnUnit) InputPorts() []graph.PortDefinition  { return ports(u.ins) }
func (u *fnUnit) OutputPorts() []graph.PortDefinition { return ports(u.outs) }

func (u *fnUnit) Process(ctx context.Context, in graph.Values, uc graph.UnitContext) (graph.Values, error) {
	u.calls.Add(1)
	u.mu.Lock()
	u.seen = append(u.seen, in.Clone())
	u.mu.Unlock()
	if u.process == nil {
		return graph.Values{}, nil
	}
	return u.process(ctx, in, uc)
}

func (u *fnUnit) ExtractMetadata(m *metadata.Map) {
	if u.extract != nil {
		u.extract(m)
	}
}

func (u *fnUnit) InjectMetadata(m *metadata.Map) *metadata.Map {
	if u.inject != nil {
		return u.inject(m)
	}
	return m
}

func (u *fnUnit) GenerateMetadata(m *metadata.Map) *metadata.Map {
	if u.generate != nil {
		return u.generate(m)
	}
	return m
}

func (u *fnUnit) SerializeParameters() map[string]any { return u.params }

func (u *fnUnit) lastInputs() graph.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.seen) == 0 {
		return nil
	}
	return u.seen[len(u.seen)-1]
}

// constant outputs {out: v}.
func constant(v any) *fnUnit {
	return &fnUnit{outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		return graph.Values{"out": v}, nil
	}}
}

// add1 outputs in+1, or 0 when in is unbound.
func add1() *fnUnit {
	return &fnUnit{ins: []string{"in"}, outs: []string{"out"}, process: func(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
		v, _ := in["in"].(int)
		return graph.Values{"out": v + 1}, nil
	}}
}

func failing(msg string) *fnUnit {
	return &fnUnit{ins: []string{"in"}, outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		return nil, stderrors.New(msg)
	}}
}

// chain builds A -> B -> C over add1 units fed by a constant.
func chain() (*graph.Graph, *fnUnit, *fnUnit, *fnUnit) {
	g := graph.New("chain")
	a, b, c := constant(1), add1(), add1()
	g.Add("A", "constant", a)
	g.Add("B", "add1", b)
	g.Add("C", "add1", c)
	g.MustConnect(1, "out", 2, "in")
	g.MustConnect(2, "out", 3, "in")
	return g, a, b, c
}

func full(t *testing.T, e *Engine, g *graph.Graph) Result {
	t.Helper()
	res := e.RunPass(context.Background(), g, Environment{}, nil)
	if res.Err != nil {
		t.Fatalf("full pass failed: %v", res.Err)
	}
	return res
}

func TestRunPass_FullChain(t *testing.T) {
	g, _, _, _ := chain()
	e := New()

	res := full(t, e, g)
	if !res.Succeeded || res.ProcessedCount != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !slices.Equal(res.Order, []graph.NodeID{1, 2, 3}) {
		t.Errorf("order = %v", res.Order)
	}
	out, ok := e.NodeOutput(3)
	if !ok || out["out"] != 3 {
		t.Errorf("node 3 output = %v, %v", out, ok)
	}
	if _, hasMeta := out[store.MetadataKey]; hasMeta {
		t.Error("NodeOutput must not expose the metadata key")
	}
	for _, n := range g.Nodes() {
		st := n.Status()
		if !st.IsProcessed || st.NeedsProcessing || st.HasError {
			t.Errorf("node %d status %+v", n.ID, st)
		}
	}
	if res.PassID == "" || res.Message == "" {
		t.Error("expected pass id and message")
	}
}

func TestRunPass_AcyclicVisitsOnceAfterDependencies(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		n := 3 + rng.Intn(10)
		g := graph.New("random")

		var mu sync.Mutex
		var visits []graph.NodeID
		for i := 0; i < n; i++ {
			id := graph.NodeID(i + 1)
			u := &fnUnit{ins: []string{"a", "b", "c"}, outs: []string{"out"}}
			u.process = func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
				mu.Lock()
				visits = append(visits, id)
				mu.Unlock()
				return graph.Values{"out": int(id)}, nil
			}
			g.Add(fmt.Sprintf("n%d", id), "fn", u)
		}
		var edges []graph.Connection
		for to := 2; to <= n; to++ {
			for _, port := range []string{"a", "b", "c"} {
				if rng.Intn(2) == 0 {
					continue
				}
				from := 1 + rng.Intn(to-1)
				g.MustConnect(graph.NodeID(from), "out", graph.NodeID(to), port)
				edges = append(edges, graph.Connection{From: graph.Endpoint{Node: graph.NodeID(from)}, To: graph.Endpoint{Node: graph.NodeID(to)}})
			}
		}

		res := New().RunPass(context.Background(), g, Environment{}, nil)
		if res.ProcessedCount != n {
			t.Fatalf("seed %d: processed %d of %d", seed, res.ProcessedCount, n)
		}
		pos := map[graph.NodeID]int{}
		for i, id := range visits {
			if _, dup := pos[id]; dup {
				t.Fatalf("seed %d: node %d visited twice", seed, id)
			}
			pos[id] = i
		}
		if len(pos) != n {
			t.Fatalf("seed %d: visited %d of %d", seed, len(pos), n)
		}
		for _, c := range edges {
			if pos[c.From.Node] >= pos[c.To.Node] {
				t.Errorf("seed %d: %d visited before its dependency %d", seed, c.To.Node, c.From.Node)
			}
		}
	}
}

func TestRunPass_RepeatedFullPassIsStable(t *testing.T) {
	g, _, _, _ := chain()
	g.Add("lonely", "fail", failing("nope"))
	e := New()

	snapshot := func() ([]graph.NodeID, map[graph.NodeID]bool) {
		flags := map[graph.NodeID]bool{}
		for _, n := range g.Nodes() {
			flags[n.ID] = n.Status().IsProcessed
		}
		return e.Store().IDs(), flags
	}

	e.RunPass(context.Background(), g, Environment{}, nil)
	ids1, flags1 := snapshot()
	e.RunPass(context.Background(), g, Environment{}, nil)
	ids2, flags2 := snapshot()

	if !slices.Equal(ids1, ids2) {
		t.Errorf("store keys differ: %v vs %v", ids1, ids2)
	}
	for id, v := range flags1 {
		if flags2[id] != v {
			t.Errorf("node %d IsProcessed differs: %v vs %v", id, v, flags2[id])
		}
	}
	if flags1[4] {
		t.Error("failing node must not be processed")
	}
}

func TestRunPass_SelectiveProcessesOnlyChangedNode(t *testing.T) {
	g, a, b, c := chain()
	e := New()
	full(t, e, g)

	res := e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{2})
	if res.Err != nil {
		t.Fatalf("selective pass: %v", res.Err)
	}
	if res.Mode != scheduler.Selective {
		t.Errorf("mode = %s", res.Mode)
	}
	if !slices.Equal(res.Processed(), []graph.NodeID{2}) {
		t.Errorf("processed = %v, want [2]", res.Processed())
	}
	if res.ProcessedCount != 1 || res.CachedCount != 1 {
		t.Errorf("counts processed=%d cached=%d", res.ProcessedCount, res.CachedCount)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 2 || c.calls.Load() != 1 {
		t.Errorf("calls a=%d b=%d c=%d", a.calls.Load(), b.calls.Load(), c.calls.Load())
	}
	if _, ok := res.Nodes[3]; ok {
		t.Error("downstream node must not be part of a selective pass")
	}
	if b.lastInputs()["in"] != 1 {
		t.Errorf("B should read A's cached output, got %v", b.lastInputs())
	}
	if !res.Succeeded {
		t.Error("expected success")
	}
}

func TestRunPass_SelectiveRunsUpstreamWithoutEntry(t *testing.T) {
	g, a, b, _ := chain()
	e := New()

	res := e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{2})
	if !slices.Equal(res.Processed(), []graph.NodeID{1, 2}) {
		t.Errorf("processed = %v, want [1 2]", res.Processed())
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Errorf("calls a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
}

func TestRunPass_SelectiveWithFailedUpstreamBindsNothing(t *testing.T) {
	g := graph.New("broken-source")
	src := failing("no image")
	src.ins = nil
	b := add1()
	g.Add("A", "fail", src)
	g.Add("B", "add1", b)
	g.MustConnect(1, "out", 2, "in")
	e := New()

	e.RunPass(context.Background(), g, Environment{}, nil)
	res := e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{2})
	if res.Err != nil {
		t.Fatalf("unexpected pass error %v", res.Err)
	}
	if _, bound := b.lastInputs()["in"]; bound {
		t.Error("B must receive no bound input when A has no entry")
	}
	if res.Nodes[2].Status != NodeProcessed {
		t.Errorf("B status = %s", res.Nodes[2].Status)
	}
}

func TestRunPass_EmptyTargetsIsNoop(t *testing.T) {
	g, a, _, _ := chain()
	e := New()
	res := e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{})
	if res.Err != nil || res.Succeeded || len(res.Order) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if a.calls.Load() != 0 {
		t.Error("nothing should run")
	}
}

func TestRunPass_FailureIsLocal(t *testing.T) {
	g := graph.New("failure")
	g.Add("src", "constant", constant(10))
	bad := failing("kernel too large")
	g.Add("bad", "fail", bad)
	after := add1()
	g.Add("after-bad", "add1", after)
	other := add1()
	g.Add("other", "add1", other)
	g.MustConnect(1, "out", 2, "in")
	g.MustConnect(2, "out", 3, "in")
	g.MustConnect(1, "out", 4, "in")

	e := New()
	res := e.RunPass(context.Background(), g, Environment{}, nil)

	if res.Err != nil {
		t.Fatalf("per-node failure must not fail the pass: %v", res.Err)
	}
	if !res.Succeeded || res.FailedCount != 1 || res.ProcessedCount != 3 {
		t.Errorf("unexpected counts %+v", res)
	}
	if e.Store().Has(2) {
		t.Error("failed node must have no store entry")
	}
	n2, _ := g.Node(2)
	st := n2.Status()
	if !st.HasError || st.ErrorMessage != "kernel too large" || st.IsProcessed {
		t.Errorf("failed node status %+v", st)
	}
	if n2.ProcessedOutputs() != nil {
		t.Error("failed node must have no cached outputs")
	}
	if out, _ := e.NodeOutput(4); out["out"] != 11 {
		t.Errorf("independent node output = %v", out)
	}
	if !slices.Equal(res.Failed(), []graph.NodeID{2}) {
		t.Errorf("failed = %v", res.Failed())
	}
	if res.Nodes[2].Message != "kernel too large" {
		t.Errorf("node result message %q", res.Nodes[2].Message)
	}
}

type buffer struct {
	id       int
	released atomic.Int32
}

func (b *buffer) Release() error {
	b.released.Add(1)
	return nil
}

var bufferIDs atomic.Int32

type cloneable struct{ buffer }

func (c *cloneable) Clone() any {
	return &cloneable{buffer: buffer{id: int(bufferIDs.Add(1))}}
}

func TestRunPass_FailureRemovesAndReleasesPreviousEntry(t *testing.T) {
	buf := &buffer{id: 1}
	var fail atomic.Bool
	u := &fnUnit{outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		if fail.Load() {
			return nil, stderrors.New("decoder crashed")
		}
		return graph.Values{"out": buf}, nil
	}}
	g := graph.New("release")
	g.Add("decoder", "decode", u)
	e := New()
	full(t, e, g)

	fail.Store(true)
	e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{1})
	if e.Store().Has(1) {
		t.Error("entry should be removed")
	}
	if buf.released.Load() != 1 {
		t.Errorf("released %d times, want 1", buf.released.Load())
	}
}

func TestRunPass_FullPassReleasesPreviousOutputs(t *testing.T) {
	var made []*buffer
	u := &fnUnit{outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		b := &buffer{id: len(made)}
		made = append(made, b)
		return graph.Values{"out": b}, nil
	}}
	g := graph.New("release")
	g.Add("decoder", "decode", u)
	e := New()
	full(t, e, g)
	full(t, e, g)

	if made[0].released.Load() != 1 {
		t.Error("first buffer should be released by the second full pass")
	}
	if made[1].released.Load() != 0 {
		t.Error("current buffer must stay alive")
	}
	_ = e.Close()
	if made[1].released.Load() != 1 {
		t.Error("Close should release the current buffer")
	}
}

func TestRunPass_ClonesSharedBuffersPerConsumer(t *testing.T) {
	shared := &cloneable{buffer: buffer{id: 0}}
	g := graph.New("clones")
	g.Add("src", "decode", &fnUnit{outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		return graph.Values{"out": shared}, nil
	}})
	sink := &fnUnit{ins: []string{"in"}, outs: []string{"len"}, process: func(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
		return graph.Values{"len": 1}, nil
	}}
	pass := &fnUnit{ins: []string{"in"}, outs: []string{"out"}, process: func(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
		return graph.Values{"out": in["in"]}, nil
	}}
	g.Add("sink", "measure", sink)
	g.Add("pass", "passthrough", pass)
	g.MustConnect(1, "out", 2, "in")
	g.MustConnect(1, "out", 3, "in")

	e := New()
	full(t, e, g)

	sinkIn := sink.lastInputs()["in"].(*cloneable)
	passIn := pass.lastInputs()["in"].(*cloneable)
	if sinkIn == shared || passIn == shared || sinkIn == passIn {
		t.Fatal("each consumer must get its own clone")
	}
	if sinkIn.released.Load() != 1 {
		t.Error("a clone not returned as output must be released after the node")
	}
	if passIn.released.Load() != 0 {
		t.Error("a clone carried into the outputs must stay alive")
	}
	if v, _ := e.Store().Value(3, "out"); v != passIn {
		t.Error("passthrough should store its clone")
	}
	if shared.released.Load() != 0 {
		t.Error("the source buffer must stay alive")
	}
}

func TestRunPass_MetadataFormula(t *testing.T) {
	g := graph.New("metadata")
	a := constant("x")
	a.generate = func(m *metadata.Map) *metadata.Map {
		m.Set("source", "a")
		m.Set("shared", "from-a")
		m.Set("processing_history", []any{"a"})
		return m
	}
	b := constant("y")
	b.generate = func(m *metadata.Map) *metadata.Map {
		m.Set("shared", "from-b")
		m.Set("gone", nil)
		return m
	}
	var extracted *metadata.Map
	c := &fnUnit{ins: []string{"left", "right"}, outs: []string{"img", "mask"}}
	c.process = func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		return graph.Values{}, nil
	}
	c.extract = func(m *metadata.Map) { extracted = m }
	c.inject = func(m *metadata.Map) *metadata.Map {
		m.Set("shared", "from-c")
		m.Set("injected", true)
		return m
	}
	c.generate = func(m *metadata.Map) *metadata.Map {
		m.Set("validated", true)
		m.Set("processing_history", []any{"a", "c"})
		return m
	}
	g.Add("A", "constant", a)
	g.Add("B", "constant", b)
	g.Add("C", "combine", c)
	g.MustConnect(1, "out", 3, "left")
	g.MustConnect(2, "out", 3, "right")

	e := New()
	full(t, e, g)

	mdA, _ := e.NodeMetadata(1)
	mdB, _ := e.NodeMetadata(2)
	p := metadata.NewPipeline(metadata.DefaultOptions())
	merged := p.Merge(mdA, mdB)
	want := p.Clean(p.Generate(c, p.Inject(c, p.Clean(merged))))

	got, ok := e.NodeMetadata(3)
	if !ok {
		t.Fatal("metadata must exist even without data outputs")
	}
	if !got.Equal(want) {
		t.Errorf("metadata = %s, want %s", got, want)
	}
	if v, _ := got.Get("shared"); v != "from-b" {
		t.Errorf("later input must win and inject must not overwrite, got %v", v)
	}
	if got.Has("gone") {
		t.Error("nil values must be cleaned")
	}
	if v, _ := got.Get("injected"); v != true {
		t.Error("injected key missing")
	}
	if extracted == nil || !extracted.Equal(merged) {
		t.Errorf("extract saw %v, want merged upstream %v", extracted, merged)
	}
	if out, _ := e.NodeOutput(3); len(out) != 0 {
		t.Errorf("expected no data outputs, got %v", out)
	}
}

func TestRunPass_MetadataIdenticalAcrossPorts(t *testing.T) {
	g := graph.New("ports")
	u := &fnUnit{outs: []string{"img", "mask"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		return graph.Values{"img": 1, "mask": 2}, nil
	}}
	u.generate = func(m *metadata.Map) *metadata.Map {
		m.Set("kind", "split")
		return m
	}
	g.Add("split", "split", u)
	e := New()
	full(t, e, g)

	img, ok1 := e.Store().Payload(1, "img")
	mask, ok2 := e.Store().Payload(1, "mask")
	if !ok1 || !ok2 {
		t.Fatal("expected payloads")
	}
	if !img.Metadata.Equal(mask.Metadata) {
		t.Error("metadata must be identical across ports")
	}
}

func TestRunPass_EnvironmentStamp(t *testing.T) {
	g := graph.New("film")
	g.Add("src", "constant", constant(1))
	opts := metadata.DefaultOptions()
	opts.StampEnvironment = true
	e := New(WithMetadataOptions(opts))

	results := e.RunBatch(context.Background(), g, []Environment{
		{GraphName: "roll-a", Index: 0},
		{Index: 7},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	md, _ := e.NodeMetadata(1)
	if v, _ := md.Get(metadata.KeyIndex); v != 7 {
		t.Errorf("index = %v, want 7", v)
	}
	if v, _ := md.GetString(metadata.KeyGraphName); v != "film" {
		t.Errorf("graph name = %v, want graph's own name", v)
	}

	plain := New()
	plain.RunPass(context.Background(), g, Environment{Index: 3}, nil)
	md, _ = plain.NodeMetadata(1)
	if md.Has(metadata.KeyIndex) {
		t.Error("stamping must be off by default")
	}
}

func TestRunBatch_StopsWhenContextDone(t *testing.T) {
	g := graph.New("batch")
	g.Add("src", "constant", constant(1))
	ctx, cancel := context.WithCancel(context.Background())
	e := New(WithObserver(ObserverFunc(func(PassEvent) { cancel() })))

	results := e.RunBatch(ctx, g, []Environment{{Index: 0}, {Index: 1}, {Index: 2}})
	if len(results) != 1 {
		t.Errorf("expected the batch to stop after the first pass, got %d results", len(results))
	}
}

func TestRunPass_TwoNodeCycleTerminates(t *testing.T) {
	g := graph.New("cycle")
	a, b := add1(), add1()
	g.Add("A", "add1", a)
	g.Add("B", "add1", b)
	g.MustConnect(1, "out", 2, "in")
	g.MustConnect(2, "out", 1, "in")

	var plan *scheduler.Plan
	e := New(WithPlanner(func(g *graph.Graph, targets []graph.NodeID) (*scheduler.Plan, error) {
		p, err := scheduler.Build(g, targets)
		plan = p
		return p, err
	}))

	done := make(chan Result, 1)
	go func() { done <- e.RunPass(context.Background(), g, Environment{}, nil) }()

	select {
	case res := <-done:
		if res.ProcessedCount != 2 || len(res.Order) != 2 {
			t.Errorf("unexpected result %+v", res)
		}
		if plan.Iterations > g.Len()+10 {
			t.Errorf("iterations %d exceed cap", plan.Iterations)
		}
		if a.calls.Load() != 1 || b.calls.Load() != 1 {
			t.Errorf("calls a=%d b=%d", a.calls.Load(), b.calls.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pass over a cycle did not terminate")
	}
}

func TestRunPass_BusyLeavesStoreUntouched(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var block atomic.Bool
	slow := &fnUnit{ins: []string{"in"}, outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		if block.Load() {
			close(started)
			<-release
		}
		return graph.Values{"out": "slow"}, nil
	}}
	g := graph.New("busy")
	g.Add("src", "constant", constant(1))
	g.Add("slow", "slow", slow)
	g.MustConnect(1, "out", 2, "in")

	e := New()
	full(t, e, g)

	block.Store(true)
	done := make(chan Result, 1)
	go func() { done <- e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{2}) }()
	<-started

	before := e.Store().IDs()
	beforeOut, _ := e.NodeOutput(1)
	if !e.Busy() {
		t.Error("engine should report busy")
	}

	res := e.RunPass(context.Background(), g, Environment{}, nil)
	if !errors.Is(res.Err, errors.ErrCodeBusy) {
		t.Fatalf("expected Busy, got %v", res.Err)
	}
	if res.Succeeded || res.ProcessedCount != 0 {
		t.Errorf("busy result %+v", res)
	}
	if !slices.Equal(before, e.Store().IDs()) {
		t.Error("busy request altered store keys")
	}
	if out, _ := e.NodeOutput(1); out["out"] != beforeOut["out"] {
		t.Error("busy request altered store values")
	}

	close(release)
	if res := <-done; res.Err != nil || res.ProcessedCount != 1 {
		t.Errorf("first pass result %+v", res)
	}
	if e.Busy() {
		t.Error("engine should be idle after the pass")
	}
}

func TestRunPass_EmptyGraph(t *testing.T) {
	notified := false
	e := New(WithObserver(ObserverFunc(func(PassEvent) { notified = true })))

	for _, g := range []*graph.Graph{nil, graph.New("empty")} {
		res := e.RunPass(context.Background(), g, Environment{}, nil)
		if !errors.Is(res.Err, errors.ErrCodeEmptyGraph) {
			t.Errorf("expected EmptyGraph, got %v", res.Err)
		}
		if res.Succeeded {
			t.Error("empty graph pass must be unsuccessful")
		}
	}
	if notified {
		t.Error("observers must not be notified for an empty graph")
	}
	if e.Busy() {
		t.Error("busy flag must be cleared")
	}
}

func TestRunPass_AbortKeepsWrittenEntries(t *testing.T) {
	g, _, _, _ := chain()
	notified := false
	e := New(
		WithProgress(func(done, total int, nr NodeResult) {
			if done == 2 {
				panic("progress sink exploded")
			}
		}),
		WithObserver(ObserverFunc(func(PassEvent) { notified = true })),
	)

	res := e.RunPass(context.Background(), g, Environment{}, nil)
	if !errors.Is(res.Err, errors.ErrCodePassAborted) {
		t.Fatalf("expected PassAborted, got %v", res.Err)
	}
	if res.Succeeded {
		t.Error("aborted pass must be unsuccessful")
	}
	if !e.Store().Has(1) || !e.Store().Has(2) {
		t.Error("entries written before the abort must stay")
	}
	if e.Store().Has(3) {
		t.Error("node after the abort must not run")
	}
	if notified {
		t.Error("aborted pass must not notify observers")
	}
	if e.Busy() {
		t.Error("busy flag must be cleared after an abort")
	}
}

func TestRunPass_PlannerErrorAborts(t *testing.T) {
	g, _, _, _ := chain()
	e := New(WithPlanner(func(*graph.Graph, []graph.NodeID) (*scheduler.Plan, error) {
		return nil, stderrors.New("no plan")
	}))
	res := e.RunPass(context.Background(), g, Environment{}, nil)
	if !errors.Is(res.Err, errors.ErrCodePassAborted) {
		t.Errorf("expected PassAborted, got %v", res.Err)
	}
}

func TestRunPass_PanicsAreNodeFailures(t *testing.T) {
	g := graph.New("panics")
	g.Add("process", "boom", &fnUnit{outs: []string{"out"}, process: func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		panic("index out of range")
	}})
	g.Add("generate", "boom", &fnUnit{outs: []string{"out"}, generate: func(*metadata.Map) *metadata.Map {
		panic("bad metadata")
	}})
	g.AddNode(graph.NewNode(0, "no-unit", "missing", nil))
	g.Add("fine", "constant", constant(1))

	e := New()
	res := e.RunPass(context.Background(), g, Environment{}, nil)
	if res.Err != nil {
		t.Fatalf("panics inside nodes must not abort the pass: %v", res.Err)
	}
	if res.FailedCount != 3 || res.ProcessedCount != 1 {
		t.Errorf("failed=%d processed=%d", res.FailedCount, res.ProcessedCount)
	}
	if !errors.Is(res.Nodes[3].Error, errors.ErrCodeUnitMissing) {
		t.Errorf("expected UnitMissing, got %v", res.Nodes[3].Error)
	}
	for _, id := range []graph.NodeID{1, 2, 3} {
		if e.Store().Has(id) {
			t.Errorf("node %d must have no entry", id)
		}
	}
}

func TestRunPass_RetriesTransientFailures(t *testing.T) {
	u := &fnUnit{outs: []string{"out"}}
	u.process = func(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
		if u.calls.Load() < 3 {
			return nil, errors.Unavailable("camera", stderrors.New("not ready"))
		}
		return graph.Values{"out": "frame"}, nil
	}
	g := graph.New("retry")
	g.Add("capture", "capture", u)

	e := New(WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}))
	res := full(t, e, g)
	if res.Nodes[1].Status != NodeProcessed || res.Nodes[1].Attempts != 3 {
		t.Errorf("node result %+v", res.Nodes[1])
	}
}

func TestRunPass_NotifiesObservers(t *testing.T) {
	g, _, _, _ := chain()
	var events []PassEvent
	e := New()
	e.AddObserver(ObserverFunc(func(ev PassEvent) { events = append(events, ev) }))
	e.AddObserver(ObserverFunc(func(PassEvent) { panic("bad observer") }))

	res := full(t, e, g)
	if len(events) != 1 || events[0].Graph != g || events[0].Result.PassID != res.PassID {
		t.Errorf("unexpected events %+v", events)
	}
}

type lifecycleUnit struct {
	fnUnit
	inits    atomic.Int32
	cleanups atomic.Int32
	workDir  string
	env      Environment
}

func (u *lifecycleUnit) Initialize(uc graph.UnitContext) error {
	u.inits.Add(1)
	u.workDir = uc.WorkDir()
	return nil
}

func (u *lifecycleUnit) Cleanup() error {
	u.cleanups.Add(1)
	return nil
}

type brokenInitUnit struct{ fnUnit }

func (u *brokenInitUnit) Initialize(graph.UnitContext) error {
	return stderrors.New("driver not loaded")
}

func TestRunPass_InitializeFailureDropsEntry(t *testing.T) {
	g := graph.New("init")
	g.Add("source", "constant", constant(7))
	e := New()
	full(t, e, g)
	if !e.Store().Has(1) {
		t.Fatal("expected an entry after the first pass")
	}

	n, _ := g.Node(1)
	n.Unit = &brokenInitUnit{fnUnit{outs: []string{"out"}}}
	res := e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{1})
	if res.Nodes[1].Status != NodeFailed || !strings.Contains(res.Nodes[1].Message, "driver not loaded") {
		t.Fatalf("node result %+v", res.Nodes[1])
	}
	if e.Store().Has(1) {
		t.Error("failed initialization must remove the stale entry")
	}
	if !n.Status().HasError {
		t.Error("node must be flagged")
	}
}

func TestEngine_UnitLifecycle(t *testing.T) {
	u := &lifecycleUnit{}
	u.outs = []string{"out"}
	u.process = func(_ context.Context, _ graph.Values, uc graph.UnitContext) (graph.Values, error) {
		u.env = uc.Environment()
		return graph.Values{"out": uc.TempDir()}, nil
	}
	g := graph.New("lifecycle")
	g.Add("unit", "lifecycle", u)

	e := New(WithPaths(Paths{WorkDir: "/work", TempDir: "/tmp/nf", ScriptsDir: "/scripts"}))
	full(t, e, g)
	e.RunPass(context.Background(), g, Environment{GraphName: "second", Index: 2}, nil)

	if u.inits.Load() != 1 {
		t.Errorf("Initialize called %d times, want 1", u.inits.Load())
	}
	if u.workDir != "/work" {
		t.Errorf("work dir = %q", u.workDir)
	}
	if u.env.GraphName != "second" || u.env.Index != 2 {
		t.Errorf("environment = %+v", u.env)
	}
	if out, _ := e.NodeOutput(1); out["out"] != "/tmp/nf" {
		t.Errorf("temp dir output = %v", out)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if u.cleanups.Load() != 1 {
		t.Errorf("Cleanup called %d times, want 1", u.cleanups.Load())
	}
	res := e.RunPass(context.Background(), g, Environment{}, nil)
	if !errors.Is(res.Err, errors.ErrCodeClosed) {
		t.Errorf("expected Closed after Close, got %v", res.Err)
	}
}

func TestUnitContext_NodeInputsAndUpdateParameter(t *testing.T) {
	g, _, _, _ := chain()
	inspector := &fnUnit{outs: []string{"seen"}, params: map[string]any{}}
	var seen graph.Values
	inspector.process = func(_ context.Context, _ graph.Values, uc graph.UnitContext) (graph.Values, error) {
		seen = uc.NodeInputs(3)
		if uc.Graph() != g {
			return nil, stderrors.New("wrong graph")
		}
		if err := uc.UpdateParameter(3, "gain", 2.5); err != nil {
			return nil, err
		}
		if err := uc.UpdateParameter(99, "gain", 1); !errors.Is(err, errors.ErrCodeNotFound) {
			return nil, fmt.Errorf("expected NotFound, got %v", err)
		}
		return graph.Values{"seen": len(seen)}, nil
	}
	g.Add("inspector", "inspect", inspector)

	e := New()
	full(t, e, g)
	if res := e.RunPass(context.Background(), g, Environment{}, []graph.NodeID{4}); res.FailedCount != 0 {
		t.Fatalf("inspector failed: %+v", res.Nodes[4])
	}
	if seen["in"] != 2 {
		t.Errorf("node 3 inputs = %v, want in=2", seen)
	}
	n3, _ := g.Node(3)
	if v, _ := n3.Parameter("gain"); v != 2.5 {
		t.Errorf("gain = %v", v)
	}
	if !n3.NeedsProcessing() {
		t.Error("updated node must be marked dirty")
	}
}

func TestRunChanged(t *testing.T) {
	g, a, b, c := chain()
	e := New()
	full(t, e, g)

	g.MarkNodeAndDownstream(2)
	res := e.RunChanged(context.Background(), g, Environment{})
	if !slices.Equal(res.Processed(), []graph.NodeID{2, 3}) {
		t.Errorf("processed = %v", res.Processed())
	}
	if a.calls.Load() != 1 || b.calls.Load() != 2 || c.calls.Load() != 2 {
		t.Errorf("calls a=%d b=%d c=%d", a.calls.Load(), b.calls.Load(), c.calls.Load())
	}
	if len(g.NodesToProcess()) != 0 {
		t.Error("processed nodes must be clean")
	}
}

func TestRunChanged_FreshGraphRunsEverything(t *testing.T) {
	g, a, b, c := chain()
	e := New()

	res := e.RunChanged(context.Background(), g, Environment{})
	if !res.Succeeded || !slices.Equal(res.Processed(), []graph.NodeID{1, 2, 3}) {
		t.Fatalf("processed = %v, result %+v", res.Processed(), res)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 || c.calls.Load() != 1 {
		t.Errorf("calls a=%d b=%d c=%d", a.calls.Load(), b.calls.Load(), c.calls.Load())
	}
	if again := e.RunChanged(context.Background(), g, Environment{}); again.ProcessedCount != 0 {
		t.Errorf("clean graph reprocessed %v", again.Processed())
	}
}

func TestRunPass_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}()

	g, _, _, _ := chain()
	full(t, New(), g)

	counts := map[string]int{}
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
	}
	if counts["nodeflow.pass"] != 1 || counts["nodeflow.node"] != 3 {
		t.Errorf("unexpected spans %v", counts)
	}
}
