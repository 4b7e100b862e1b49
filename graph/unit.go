package graph

import (
	"context"

	"github.com/kbukum/nodeflow/metadata"
)

// PortDefinition describes a port a unit exposes.
type PortDefinition struct {
	Name        string
	DataType    string
	Description string
	Flexible    bool
}

// Unit is the transform bound to a node.
type Unit interface {
	InputPorts() []PortDefinition
	OutputPorts() []PortDefinition
	// Process computes outputs keyed by output port name. Inputs contain
	// only the ports whose upstream value was available.
	Process(ctx context.Context, inputs Values, uc UnitContext) (Values, error)
	ExtractMetadata(upstream *metadata.Map)
	InjectMetadata(current *metadata.Map) *metadata.Map
	GenerateMetadata(current *metadata.Map) *metadata.Map
	SerializeParameters() map[string]any
}

// UnitContext is the ambient environment handed to Process.
type UnitContext interface {
	WorkDir() string
	TempDir() string
	ScriptsDir() string
	Environment() Environment
	Graph() *Graph
	// NodeInputs returns the inputs node id would currently receive.
	NodeInputs(id NodeID) Values
	// UpdateParameter changes a parameter on another node.
	UpdateParameter(id NodeID, name string, value any) error
}

// ParameterSetter is implemented by units whose parameters can change
// after construction.
type ParameterSetter interface {
	SetParameter(name string, value any) error
}

// ParameterLoader is implemented by units that restore parameters in bulk.
type ParameterLoader interface {
	DeserializeParameters(params map[string]any) error
}

// Initializer is implemented by units that need setup before their first run.
type Initializer interface {
	Initialize(uc UnitContext) error
}

// Cleaner is implemented by units holding resources beyond a single run.
type Cleaner interface {
	Cleanup() error
}

// Environment describes the context a pass runs in.
type Environment struct {
	GraphName string
	// Index distinguishes runs of the same graph in a batch.
	Index  int
	Values map[string]any
}

// Value returns an environment value.
func (e Environment) Value(key string) (any, bool) {
	v, ok := e.Values[key]
	return v, ok
}
