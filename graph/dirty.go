package graph

// MarkAllForProcessing flags every node as needing processing.
func (g *Graph) MarkAllForProcessing() {
	for _, n := range g.Nodes() {
		n.SetNeedsProcessing(true)
	}
}

// ClearProcessingFlags marks every node clean.
func (g *Graph) ClearProcessingFlags() {
	for _, n := range g.Nodes() {
		n.SetNeedsProcessing(false)
	}
}

// ClearProcessedFlags clears IsProcessed on every node.
func (g *Graph) ClearProcessedFlags() {
	for _, n := range g.Nodes() {
		n.ClearProcessed()
	}
}

// NodesToProcess returns the ids of dirty nodes in graph order.
func (g *Graph) NodesToProcess() []NodeID {
	var out []NodeID
	for _, n := range g.Nodes() {
		if n.NeedsProcessing() {
			out = append(out, n.ID)
		}
	}
	return out
}

// Downstream returns id and every node reachable from it, in discovery order.
func (g *Graph) Downstream(id NodeID) []NodeID {
	if _, ok := g.Node(id); !ok {
		return nil
	}
	conns := g.Connections()
	visited := map[NodeID]bool{id: true}
	out := []NodeID{id}
	for i := 0; i < len(out); i++ {
		for _, c := range conns {
			if c.From.Node != out[i] || visited[c.To.Node] {
				continue
			}
			if _, ok := g.Node(c.To.Node); !ok {
				continue
			}
			visited[c.To.Node] = true
			out = append(out, c.To.Node)
		}
	}
	return out
}

// MarkNodeAndDownstream flags id and everything downstream of it as dirty
// and returns the affected ids.
func (g *Graph) MarkNodeAndDownstream(id NodeID) []NodeID {
	ids := g.Downstream(id)
	for _, d := range ids {
		if n, ok := g.Node(d); ok {
			n.SetNeedsProcessing(true)
		}
	}
	return ids
}

// HandleConnectionChange marks the node fed by c, and its downstream, dirty.
func (g *Graph) HandleConnectionChange(c Connection) []NodeID {
	return g.MarkNodeAndDownstream(c.To.Node)
}

// HandleNodeDeletion marks the nodes that consumed id as dirty, then removes
// id and its connections. It returns the nodes marked dirty.
func (g *Graph) HandleNodeDeletion(id NodeID) []NodeID {
	var affected []NodeID
	seen := map[NodeID]bool{id: true}
	for _, c := range g.Outgoing(id) {
		if seen[c.To.Node] {
			continue
		}
		for _, d := range g.MarkNodeAndDownstream(c.To.Node) {
			if !seen[d] {
				seen[d] = true
				affected = append(affected, d)
			}
		}
	}
	g.RemoveNode(id)
	return affected
}
