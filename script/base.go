package script

import (
	"fmt"
	"maps"
	"sync"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/metadata"
)

// Base implements the optional parts of graph.Unit: metadata hooks pass the
// current map through and parameters live in a guarded map.
// Embed it and implement the port declarations and Process.
type Base struct {
	mu     sync.RWMutex
	params map[string]any
}

// ExtractMetadata ignores upstream metadata.
func (b *Base) ExtractMetadata(*metadata.Map) {}

// InjectMetadata proposes nothing new.
func (b *Base) InjectMetadata(current *metadata.Map) *metadata.Map { return current }

// GenerateMetadata keeps the current map.
func (b *Base) GenerateMetadata(current *metadata.Map) *metadata.Map { return current }

// SerializeParameters returns a copy of the parameters.
func (b *Base) SerializeParameters() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.params)
}

// SetParameter stores a parameter.
func (b *Base) SetParameter(name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		b.params = make(map[string]any)
	}
	b.params[name] = value
	return nil
}

// DeserializeParameters replaces stored parameters with params.
func (b *Base) DeserializeParameters(params map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = maps.Clone(params)
	return nil
}

// Param returns a raw parameter.
func (b *Base) Param(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.params[name]
	return v, ok
}

// Number reads a numeric parameter, falling back to def when absent.
func (b *Base) Number(name string, def float64) float64 {
	v, ok := b.Param(name)
	if !ok {
		return def
	}
	if f, ok := ToFloat(v); ok {
		return f
	}
	return def
}

// Text reads a string parameter, falling back to def when absent.
func (b *Base) Text(name, def string) string {
	v, ok := b.Param(name)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToFloat converts numeric payloads to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Input reads a typed input value.
func Input[T any](inputs graph.Values, port string) (T, error) {
	var zero T
	raw, ok := inputs[port]
	if !ok {
		return zero, errors.InvalidInput(port, fmt.Sprintf("input %q is not connected", port))
	}
	val, ok := raw.(T)
	if !ok {
		return zero, errors.InvalidInput(port, fmt.Sprintf("input %q: expected %T, got %T", port, zero, raw))
	}
	return val, nil
}

// Port is shorthand for a port definition.
func Port(name, dataType string) graph.PortDefinition {
	return graph.PortDefinition{Name: name, DataType: dataType}
}
