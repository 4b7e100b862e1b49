package units

import (
	"context"
	"fmt"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/script"
)

// ConstantUnit emits its "value" parameter on "out". A missing value
// emits nothing.
type ConstantUnit struct {
	script.Base
}

func (u *ConstantUnit) InputPorts() []graph.PortDefinition { return nil }

func (u *ConstantUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("out", "any")}
}

func (u *ConstantUnit) Process(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
	v, ok := u.Param("value")
	if !ok {
		return graph.Values{}, nil
	}
	return graph.Values{"out": v}, nil
}

// GenerateMetadata starts a lineage for the emitted value.
func (u *ConstantUnit) GenerateMetadata(current *metadata.Map) *metadata.Map {
	out := current
	if !out.Has(metadata.KeyLineageID) {
		out = metadata.Create(current)
	}
	metadata.AddProcessingRecord(out, Constant, nil)
	return out
}

// ScaleUnit multiplies a numeric "in" by the "factor" parameter.
type ScaleUnit struct {
	script.Base
}

func (u *ScaleUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("in", "number")}
}

func (u *ScaleUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("out", "number")}
}

func (u *ScaleUnit) Process(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
	raw, ok := in["in"]
	if !ok {
		return nil, errors.InvalidInput("in", "input is not connected")
	}
	v, ok := script.ToFloat(raw)
	if !ok {
		return nil, errors.InvalidInput("in", fmt.Sprintf("expected a number, got %T", raw))
	}
	return graph.Values{"out": v * u.Number("factor", 1)}, nil
}

func (u *ScaleUnit) GenerateMetadata(current *metadata.Map) *metadata.Map {
	metadata.AddProcessingRecord(current, Scale, map[string]any{"factor": u.Number("factor", 1)})
	return current
}

// SumUnit adds the numeric inputs "a" and "b"; an unbound input counts as 0.
type SumUnit struct {
	script.Base
}

func (u *SumUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("a", "number"), script.Port("b", "number")}
}

func (u *SumUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("out", "number")}
}

func (u *SumUnit) Process(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
	total := 0.0
	for _, port := range []string{"a", "b"} {
		raw, ok := in[port]
		if !ok {
			continue
		}
		v, ok := script.ToFloat(raw)
		if !ok {
			return nil, errors.InvalidInput(port, fmt.Sprintf("expected a number, got %T", raw))
		}
		total += v
	}
	return graph.Values{"out": total}, nil
}

func (u *SumUnit) GenerateMetadata(current *metadata.Map) *metadata.Map {
	metadata.AddProcessingRecord(current, Sum, nil)
	return current
}

// PassthroughUnit forwards "in" to "out" unchanged.
type PassthroughUnit struct {
	script.Base
}

func (u *PassthroughUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "in", DataType: "any", Flexible: true}}
}

func (u *PassthroughUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "out", DataType: "any", Flexible: true}}
}

func (u *PassthroughUnit) Process(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
	v, ok := in["in"]
	if !ok {
		return graph.Values{}, nil
	}
	return graph.Values{"out": v}, nil
}
