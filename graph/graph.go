package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kbukum/nodeflow/errors"
)

// Endpoint addresses a port on a node.
type Endpoint struct {
	Node NodeID `json:"node" yaml:"node"`
	Port string `json:"port" yaml:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%s", e.Node, e.Port)
}

// Connection carries data from an output port to an input port.
type Connection struct {
	From Endpoint `json:"from" yaml:"from"`
	To   Endpoint `json:"to" yaml:"to"`
}

func (c Connection) String() string {
	return c.From.String() + " -> " + c.To.String()
}

// Graph is a node table plus an ordered connection list.
type Graph struct {
	Name string

	mu          sync.RWMutex
	nodes       map[NodeID]*Node
	order       []NodeID
	connections []Connection
	nextID      NodeID
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		Name:   name,
		nodes:  make(map[NodeID]*Node),
		nextID: 1,
	}
}

// AddNode inserts n. A zero ID is replaced by the next free id.
func (g *Graph) AddNode(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n.ID == 0 {
		n.ID = g.nextID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return errors.AlreadyExists("node").WithDetail("id", int(n.ID))
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	if n.ID >= g.nextID {
		g.nextID = n.ID + 1
	}
	return nil
}

// Add creates a node for unit with the next free id.
func (g *Graph) Add(title, script string, unit Unit) *Node {
	n := NewNode(0, title, script, unit)
	// A zero id never collides.
	_ = g.AddNode(n)
	return n
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// NodeIDs returns all node ids in insertion order.
func (g *Graph) NodeIDs() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Connect adds a connection. Endpoints may reference missing nodes, but a
// destination port accepts at most one connection.
func (g *Graph) Connect(from, to Endpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.connections {
		if c.To == to {
			return errors.InvalidInput("to", fmt.Sprintf("port %s already has an incoming connection", to))
		}
	}
	g.connections = append(g.connections, Connection{From: from, To: to})
	return nil
}

// MustConnect is Connect for graphs assembled in code; it panics on error.
func (g *Graph) MustConnect(from NodeID, fromPort string, to NodeID, toPort string) {
	if err := g.Connect(Endpoint{from, fromPort}, Endpoint{to, toPort}); err != nil {
		panic(err)
	}
}

// Disconnect removes the connection ending at to.
func (g *Graph) Disconnect(to Endpoint) (Connection, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.connections {
		if c.To == to {
			g.connections = slices.Delete(g.connections, i, i+1)
			return c, true
		}
	}
	return Connection{}, false
}

// Connections returns a copy of the connection list.
func (g *Graph) Connections() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.connections)
}

// InputConnection returns the first connection ending at to.
func (g *Graph) InputConnection(to Endpoint) (Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.connections {
		if c.To == to {
			return c, true
		}
	}
	return Connection{}, false
}

// Incoming returns the connections ending at node id.
func (g *Graph) Incoming(id NodeID) []Connection {
	return g.filter(func(c Connection) bool { return c.To.Node == id })
}

// Outgoing returns the connections starting at node id.
func (g *Graph) Outgoing(id NodeID) []Connection {
	return g.filter(func(c Connection) bool { return c.From.Node == id })
}

func (g *Graph) filter(keep func(Connection) bool) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Connection
	for _, c := range g.connections {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// RemoveNode deletes a node and every connection touching it.
func (g *Graph) RemoveNode(id NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(v NodeID) bool { return v == id })
	g.connections = slices.DeleteFunc(g.connections, func(c Connection) bool {
		return c.From.Node == id || c.To.Node == id
	})
	return true
}
