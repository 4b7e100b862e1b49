package httpapi

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
)

// GraphSummary is the list view of a loaded graph.
type GraphSummary struct {
	Name        string `json:"name"`
	Nodes       int    `json:"nodes"`
	Connections int    `json:"connections"`
	Dirty       int    `json:"dirty"`
}

// Catalog holds the graphs the service can run, keyed by name. Graphs not
// yet loaded are built from the loader on first use.
type Catalog struct {
	loader   graph.Loader
	resolver graph.UnitResolver

	mu     sync.Mutex
	graphs *treemap.Map
}

// NewCatalog creates a catalog. A nil loader disables loading from disk.
func NewCatalog(loader graph.Loader, resolver graph.UnitResolver) *Catalog {
	return &Catalog{
		loader:   loader,
		resolver: resolver,
		graphs:   treemap.NewWithStringComparator(),
	}
}

// Get returns the named graph, loading it on first use.
func (c *Catalog) Get(name string) (*graph.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.graphs.Get(name); ok {
		return g.(*graph.Graph), nil
	}
	if c.loader == nil {
		return nil, errors.NotFound("graph", name)
	}
	def, err := c.loader.Load(name)
	if err != nil {
		return nil, err
	}
	g, err := c.build(def)
	if err != nil {
		return nil, err
	}
	c.graphs.Put(name, g)
	return g, nil
}

// Put builds def and replaces any graph of the same name.
func (c *Catalog) Put(def *graph.Definition) (*graph.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, err := c.build(def)
	if err != nil {
		return nil, err
	}
	c.graphs.Put(def.Name, g)
	return g, nil
}

// List summarizes the loaded graphs in name order.
func (c *Catalog) List() []GraphSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]GraphSummary, 0, c.graphs.Size())
	it := c.graphs.Iterator()
	for it.Next() {
		g := it.Value().(*graph.Graph)
		out = append(out, GraphSummary{
			Name:        g.Name,
			Nodes:       g.Len(),
			Connections: len(g.Connections()),
			Dirty:       len(g.NodesToProcess()),
		})
	}
	return out
}

func (c *Catalog) build(def *graph.Definition) (*graph.Graph, error) {
	return graph.Build(def, c.resolver)
}
