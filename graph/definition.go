package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/validation"
)

// Definition is a YAML graph description.
type Definition struct {
	// Name identifies the graph.
	Name string `json:"name" yaml:"name" validate:"required"`
	// Nodes lists node specifications in graph order.
	Nodes []NodeDefinition `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	// Connections lists data edges.
	Connections []Connection `json:"connections" yaml:"connections"`
}

// NodeDefinition describes one node.
type NodeDefinition struct {
	ID         NodeID         `json:"id" yaml:"id" validate:"gte=1"`
	Title      string         `json:"title" yaml:"title"`
	Script     string         `json:"script" yaml:"script" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// UnitResolver creates a unit for a script type key.
type UnitResolver interface {
	New(script string) (Unit, error)
}

// Loader loads graph definitions by name.
type Loader interface {
	Load(name string) (*Definition, error)
}

// FileLoader loads definitions from YAML files on disk.
type FileLoader struct {
	dirs []string
}

// NewFileLoader creates a loader that searches the given directories.
func NewFileLoader(dirs ...string) Loader {
	return &FileLoader{dirs: dirs}
}

// Load searches for {name}.yaml and {name}.yml in each directory and its
// immediate subdirectories.
func (l *FileLoader) Load(name string) (*Definition, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			if d, err := LoadFile(filepath.Join(dir, name+ext)); err == nil {
				return d, nil
			}
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			for _, match := range matches {
				if d, err := LoadFile(match); err == nil {
					return d, nil
				}
			}
		}
	}
	return nil, errors.NotFound("graph definition", name).WithDetail("dirs", l.dirs)
}

// LoadFile reads and parses a definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("graph: parsing %s: %w", path, err)
	}
	return d, nil
}

// ParseDefinition decodes and validates YAML.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, errors.InvalidInput("", err.Error()).WithCause(err)
	}
	if err := validation.Validate(d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Build instantiates a graph from the definition, creating each node's unit
// through resolver and restoring its parameters.
func Build(d *Definition, resolver UnitResolver) (*Graph, error) {
	g := New(d.Name)
	for _, nd := range d.Nodes {
		unit, err := resolver.New(nd.Script)
		if err != nil {
			return nil, fmt.Errorf("graph: node %d: %w", nd.ID, err)
		}
		if len(nd.Parameters) > 0 {
			if err := applyParameters(unit, nd.Parameters); err != nil {
				return nil, fmt.Errorf("graph: node %d parameters: %w", nd.ID, err)
			}
		}
		title := nd.Title
		if title == "" {
			title = nd.Script
		}
		if err := g.AddNode(NewNode(nd.ID, title, nd.Script, unit)); err != nil {
			return nil, err
		}
	}
	for _, c := range d.Connections {
		if err := g.Connect(c.From, c.To); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func applyParameters(unit Unit, params map[string]any) error {
	if loader, ok := unit.(ParameterLoader); ok {
		return loader.DeserializeParameters(params)
	}
	setter, ok := unit.(ParameterSetter)
	if !ok {
		return errors.InvalidInput("parameters", "unit does not accept parameters")
	}
	for k, v := range params {
		if err := setter.SetParameter(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Describe produces a definition from a live graph.
func Describe(g *Graph) *Definition {
	d := &Definition{Name: g.Name, Connections: g.Connections()}
	for _, n := range g.Nodes() {
		params := make(map[string]any)
		if n.Unit != nil {
			params = n.Unit.SerializeParameters()
		}
		d.Nodes = append(d.Nodes, NodeDefinition{
			ID:         n.ID,
			Title:      n.Title,
			Script:     n.Script,
			Parameters: params,
		})
	}
	return d
}
