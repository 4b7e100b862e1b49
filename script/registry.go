package script

import (
	"sort"
	"sync"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
)

// Factory creates a fresh unit instance.
type Factory func() graph.Unit

// Registry maps script type keys to unit factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New creates a unit for the given script type.
func (r *Registry) New(name string) (graph.Unit, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, errors.NotFound("script", name)
	}
	return f(), nil
}

// List returns sorted names of all registered scripts.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info describes a registered script.
type Info struct {
	Name    string                 `json:"name"`
	Inputs  []graph.PortDefinition `json:"inputs"`
	Outputs []graph.PortDefinition `json:"outputs"`
}

// Describe returns the port layout of every registered script.
func (r *Registry) Describe() []Info {
	names := r.List()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		f, _ := r.Get(name)
		u := f()
		out = append(out, Info{Name: name, Inputs: u.InputPorts(), Outputs: u.OutputPorts()})
	}
	return out
}
