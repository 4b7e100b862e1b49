package graph

import (
	"maps"
	"sync"
)

// NodeID identifies a node within its graph.
type NodeID int

// Values maps port names to payloads.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	return maps.Clone(v)
}

// Direction tells input ports from output ports.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Port is a named, typed connection point on a node.
type Port struct {
	Name        string    `json:"name"`
	DataType    string    `json:"data_type"`
	Direction   Direction `json:"direction"`
	Description string    `json:"description,omitempty"`
	// Flexible ports accept any data type.
	Flexible bool `json:"flexible,omitempty"`
}

// Status is a snapshot of a node's processing flags.
type Status struct {
	NeedsProcessing bool   `json:"needs_processing"`
	IsProcessed     bool   `json:"is_processed"`
	HasError        bool   `json:"has_error"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Node is a vertex of the graph.
type Node struct {
	ID          NodeID
	Title       string
	Script      string
	InputPorts  []Port
	OutputPorts []Port
	Parameters  map[string]any
	Unit        Unit

	mu      sync.RWMutex
	status  Status
	outputs Values
}

// NewNode creates a node whose ports mirror the unit's port definitions.
// New nodes need processing until their first successful run.
func NewNode(id NodeID, title, script string, unit Unit) *Node {
	n := &Node{
		ID:         id,
		Title:      title,
		Script:     script,
		Unit:       unit,
		Parameters: make(map[string]any),
		status:     Status{NeedsProcessing: true},
	}
	if unit != nil {
		n.InputPorts = portsFrom(unit.InputPorts(), Input)
		n.OutputPorts = portsFrom(unit.OutputPorts(), Output)
		maps.Copy(n.Parameters, unit.SerializeParameters())
	}
	return n
}

func portsFrom(defs []PortDefinition, dir Direction) []Port {
	ports := make([]Port, len(defs))
	for i, d := range defs {
		ports[i] = Port{
			Name:        d.Name,
			DataType:    d.DataType,
			Direction:   dir,
			Description: d.Description,
			Flexible:    d.Flexible,
		}
	}
	return ports
}

// InputPort looks up an input port by name.
func (n *Node) InputPort(name string) (Port, bool) {
	return findPort(n.InputPorts, name)
}

// OutputPort looks up an output port by name.
func (n *Node) OutputPort(name string) (Port, bool) {
	return findPort(n.OutputPorts, name)
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Status returns a snapshot of the node's flags.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// NeedsProcessing reports whether the node is dirty.
func (n *Node) NeedsProcessing() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status.NeedsProcessing
}

// SetNeedsProcessing sets or clears the dirty flag.
func (n *Node) SetNeedsProcessing(v bool) {
	n.mu.Lock()
	n.status.NeedsProcessing = v
	n.mu.Unlock()
}

// ResetError clears the error flag and message.
func (n *Node) ResetError() {
	n.mu.Lock()
	n.status.HasError = false
	n.status.ErrorMessage = ""
	n.mu.Unlock()
}

// MarkFailed records a failure and drops the cached outputs.
func (n *Node) MarkFailed(message string) {
	n.mu.Lock()
	n.status.HasError = true
	n.status.ErrorMessage = message
	n.status.IsProcessed = false
	n.outputs = nil
	n.mu.Unlock()
}

// MarkProcessed records a successful run.
func (n *Node) MarkProcessed(outputs Values) {
	n.mu.Lock()
	n.status.IsProcessed = true
	n.status.NeedsProcessing = false
	n.outputs = outputs.Clone()
	n.mu.Unlock()
}

// MarkReused marks a node whose cached result was reused by a pass.
func (n *Node) MarkReused() {
	n.mu.Lock()
	n.status.IsProcessed = true
	n.mu.Unlock()
}

// ClearProcessed clears the processed flag.
func (n *Node) ClearProcessed() {
	n.mu.Lock()
	n.status.IsProcessed = false
	n.mu.Unlock()
}

// ProcessedOutputs returns the outputs of the node's last successful run.
func (n *Node) ProcessedOutputs() Values {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.outputs.Clone()
}

// Parameter returns a parameter value.
func (n *Node) Parameter(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.Parameters[name]
	return v, ok
}

// SetParameter stores a parameter and forwards it to the unit when the unit
// accepts parameter updates.
func (n *Node) SetParameter(name string, value any) error {
	if setter, ok := n.Unit.(ParameterSetter); ok {
		if err := setter.SetParameter(name, value); err != nil {
			return err
		}
	}
	n.mu.Lock()
	if n.Parameters == nil {
		n.Parameters = make(map[string]any)
	}
	n.Parameters[name] = value
	n.mu.Unlock()
	return nil
}
