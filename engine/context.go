package engine

import (
	"fmt"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
)

// unitContext is the graph.UnitContext handed to units during a pass.
type unitContext struct {
	engine *Engine
	graph  *graph.Graph
	env    Environment
}

var _ graph.UnitContext = (*unitContext)(nil)

func (c *unitContext) WorkDir() string { return c.engine.paths.WorkDir }
func (c *unitContext) TempDir() string { return c.engine.paths.TempDir }
func (c *unitContext) ScriptsDir() string { return c.engine.paths.ScriptsDir }
func (c *unitContext) Environment() Environment { return c.env }
func (c *unitContext) Graph() *graph.Graph { return c.graph }

// NodeInputs returns the values node id would be bound to right now.
// Shared payloads are not cloned; callers must not mutate them.
func (c *unitContext) NodeInputs(id graph.NodeID) graph.Values {
	n, ok := c.graph.Node(id)
	if !ok {
		return nil
	}
	return c.engine.bind(c.graph, n, false).inputs
}

// UpdateParameter sets a parameter on another node and marks it and its
// downstream dirty for the next pass.
func (c *unitContext) UpdateParameter(id graph.NodeID, name string, value any) error {
	n, ok := c.graph.Node(id)
	if !ok {
		return errors.NotFound("node", fmt.Sprint(id))
	}
	if err := n.SetParameter(name, value); err != nil {
		return err
	}
	c.graph.MarkNodeAndDownstream(id)
	return nil
}
