package engine

import (
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/store"
)

// binding is the input side of one node invocation.
type binding struct {
	inputs graph.Values
	// metadata holds upstream maps in input-port order.
	metadata []*metadata.Map
	// clones are per-consumer copies made for this invocation.
	clones []any
}

// bind resolves n's inputs from the store. An input port is bound when a
// connection ends at it and the source's entry holds the source port.
// Upstream metadata is collected from every connected source with an entry.
func (e *Engine) bind(g *graph.Graph, n *graph.Node, clone bool) binding {
	b := binding{inputs: graph.Values{}}
	for _, port := range n.InputPorts {
		c, ok := g.InputConnection(graph.Endpoint{Node: n.ID, Port: port.Name})
		if !ok {
			continue
		}
		entry, ok := e.store.Get(c.From.Node)
		if !ok {
			continue
		}
		if md, ok := entry[store.MetadataKey].(*metadata.Map); ok {
			b.metadata = append(b.metadata, md)
		}
		v, ok := entry[c.From.Port]
		if !ok || c.From.Port == store.MetadataKey {
			continue
		}
		if cl, ok := v.(store.Cloner); ok && clone {
			v = cl.Clone()
			b.clones = append(b.clones, v)
		}
		b.inputs[port.Name] = v
	}
	return b
}

// release frees clones that did not end up in the node's outputs.
func (b binding) release(log *logger.Logger, kept graph.Values) {
	for _, v := range b.clones {
		r, ok := v.(store.Releaser)
		if !ok || store.Retains(kept, v) {
			continue
		}
		if err := r.Release(); err != nil {
			log.Warn("releasing input clone failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}
}
