package units

import (
	"context"

	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/script"
)

// AnnotateUnit forwards "in" and proposes the "key"/"value" parameter pair
// as metadata. Keys already present upstream win.
type AnnotateUnit struct {
	script.Base
	seen int
}

func (u *AnnotateUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "in", DataType: "any", Flexible: true}}
}

func (u *AnnotateUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "out", DataType: "any", Flexible: true}}
}

func (u *AnnotateUnit) Process(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
	if v, ok := in["in"]; ok {
		return graph.Values{"out": v}, nil
	}
	return graph.Values{}, nil
}

// ExtractMetadata counts the upstream keys.
func (u *AnnotateUnit) ExtractMetadata(upstream *metadata.Map) {
	u.seen = upstream.Len()
}

func (u *AnnotateUnit) InjectMetadata(current *metadata.Map) *metadata.Map {
	key := u.Text("key", "")
	if key == "" {
		return current
	}
	v, _ := u.Param("value")
	current.Set(key, v)
	return current
}

func (u *AnnotateUnit) GenerateMetadata(current *metadata.Map) *metadata.Map {
	metadata.AddProcessingRecord(current, Annotate, map[string]any{"upstream_keys": u.seen})
	return current
}
