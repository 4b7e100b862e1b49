package graph

import (
	"fmt"

	"github.com/kbukum/nodeflow/validation"
)

// Validate reports structural problems: dangling endpoints, unknown ports,
// duplicate destination ports and nodes without a unit. The engine tolerates
// all of them; callers that load graphs from files use Validate to reject
// malformed input early.
func (g *Graph) Validate() error {
	v := validation.New()
	for _, n := range g.Nodes() {
		field := fmt.Sprintf("nodes[%d]", n.ID)
		v.Custom(n.Unit != nil, field+".unit", "no script unit bound")
	}

	seenTo := make(map[Endpoint]bool)
	for i, c := range g.Connections() {
		field := fmt.Sprintf("connections[%d]", i)
		if seenTo[c.To] {
			v.AddError(field+".to", fmt.Sprintf("port %s has more than one incoming connection", c.To))
		}
		seenTo[c.To] = true

		if src, ok := g.Node(c.From.Node); !ok {
			v.AddError(field+".from", fmt.Sprintf("node %d does not exist", c.From.Node))
		} else if _, ok := src.OutputPort(c.From.Port); !ok && len(src.OutputPorts) > 0 {
			v.AddError(field+".from", fmt.Sprintf("node %d has no output port %q", c.From.Node, c.From.Port))
		}
		if dst, ok := g.Node(c.To.Node); !ok {
			v.AddError(field+".to", fmt.Sprintf("node %d does not exist", c.To.Node))
		} else if _, ok := dst.InputPort(c.To.Port); !ok && len(dst.InputPorts) > 0 {
			v.AddError(field+".to", fmt.Sprintf("node %d has no input port %q", c.To.Node, c.To.Port))
		}
	}
	return v.Validate()
}
