package scheduler

import (
	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
)

// Mode is the scheduling mode of a pass.
type Mode string

const (
	Full      Mode = "full"
	Selective Mode = "selective"
)

// extraIterations bounds layering beyond one iteration per node.
const extraIterations = 10

// Plan is a computed execution order.
type Plan struct {
	Mode Mode
	// Order lists every scheduled node exactly once.
	Order []graph.NodeID
	// Layers groups Order by the iteration that emitted each node.
	Layers [][]graph.NodeID
	// Closure holds the scheduled node set in selective mode.
	Closure map[graph.NodeID]bool
	// Forced lists nodes seeded to break cycles.
	Forced []graph.NodeID
	// Appended lists nodes added after the iteration cap.
	Appended []graph.NodeID
	// Iterations is the number of layering iterations run.
	Iterations int
}

// Contains reports whether id is scheduled.
func (p *Plan) Contains(id graph.NodeID) bool {
	if p.Closure != nil {
		return p.Closure[id]
	}
	for _, o := range p.Order {
		if o == id {
			return true
		}
	}
	return false
}

// Build computes the plan for g. A nil targets slice schedules every node;
// otherwise only targets and their transitive upstream nodes are scheduled.
func Build(g *graph.Graph, targets []graph.NodeID) (*Plan, error) {
	if g == nil {
		return nil, errors.EmptyGraph()
	}
	if targets == nil {
		p := layer(g, g.NodeIDs())
		p.Mode = Full
		return p, nil
	}
	members := Closure(g, targets)
	p := layer(g, members)
	p.Mode = Selective
	p.Closure = make(map[graph.NodeID]bool, len(members))
	for _, id := range members {
		p.Closure[id] = true
	}
	return p, nil
}

// Order returns the execution order for g; see Build.
func Order(g *graph.Graph, targets []graph.NodeID) ([]graph.NodeID, error) {
	p, err := Build(g, targets)
	if err != nil {
		return nil, err
	}
	return p.Order, nil
}

// Closure returns targets plus every node upstream of them, in graph order.
// Unknown target ids are ignored.
func Closure(g *graph.Graph, targets []graph.NodeID) []graph.NodeID {
	conns := g.Connections()
	in := make(map[graph.NodeID]bool)
	var queue []graph.NodeID
	for _, id := range targets {
		if _, ok := g.Node(id); ok && !in[id] {
			in[id] = true
			queue = append(queue, id)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, c := range conns {
			if c.To.Node != queue[i] || in[c.From.Node] {
				continue
			}
			if _, ok := g.Node(c.From.Node); !ok {
				continue
			}
			in[c.From.Node] = true
			queue = append(queue, c.From.Node)
		}
	}
	var out []graph.NodeID
	for _, id := range g.NodeIDs() {
		if in[id] {
			out = append(out, id)
		}
	}
	return out
}

// layer runs layered Kahn over members using only edges between members.
func layer(g *graph.Graph, members []graph.NodeID) *Plan {
	p := &Plan{}
	member := make(map[graph.NodeID]bool, len(members))
	for _, id := range members {
		member[id] = true
	}

	inDegree := make(map[graph.NodeID]int, len(members))
	dependents := make(map[graph.NodeID][]graph.NodeID)
	for _, c := range g.Connections() {
		if !member[c.From.Node] || !member[c.To.Node] {
			continue
		}
		inDegree[c.To.Node]++
		dependents[c.From.Node] = append(dependents[c.From.Node], c.To.Node)
	}

	var current []graph.NodeID
	for _, id := range members {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	emitted := make(map[graph.NodeID]bool, len(members))
	queued := make(map[graph.NodeID]bool, len(members))
	for _, id := range current {
		queued[id] = true
	}

	maxIterations := len(members) + extraIterations
	for len(p.Order) < len(members) && p.Iterations < maxIterations {
		p.Iterations++
		if len(current) == 0 {
			seed, ok := firstUnemitted(members, emitted)
			if !ok {
				break
			}
			p.Forced = append(p.Forced, seed)
			current = []graph.NodeID{seed}
		}

		var level []graph.NodeID
		for _, id := range current {
			if emitted[id] {
				continue
			}
			emitted[id] = true
			level = append(level, id)
		}
		if len(level) > 0 {
			p.Layers = append(p.Layers, level)
			p.Order = append(p.Order, level...)
		}

		var next []graph.NodeID
		for _, id := range level {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] <= 0 && !emitted[dep] && !queued[dep] {
					queued[dep] = true
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	for _, id := range members {
		if !emitted[id] {
			emitted[id] = true
			p.Appended = append(p.Appended, id)
			p.Order = append(p.Order, id)
		}
	}
	return p
}

func firstUnemitted(members []graph.NodeID, emitted map[graph.NodeID]bool) (graph.NodeID, bool) {
	for _, id := range members {
		if !emitted[id] {
			return id, true
		}
	}
	return 0, false
}
