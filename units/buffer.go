package units

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/script"
)

// Samples is a native-style buffer. The engine clones it per consumer and
// releases it when its store entry is replaced or removed.
type Samples struct {
	Data     []float64
	released atomic.Bool
}

// NewSamples allocates a buffer of n copies of fill.
func NewSamples(n int, fill float64) *Samples {
	data := make([]float64, n)
	for i := range data {
		data[i] = fill
	}
	return &Samples{Data: data}
}

// Release frees the buffer. Later calls are no-ops.
func (s *Samples) Release() error {
	if s.released.CompareAndSwap(false, true) {
		s.Data = nil
	}
	return nil
}

// Released reports whether Release was called.
func (s *Samples) Released() bool { return s.released.Load() }

// Clone returns an independent copy.
func (s *Samples) Clone() any {
	return &Samples{Data: append([]float64(nil), s.Data...)}
}

// BufferUnit allocates a Samples buffer of "size" elements, filled with the
// numeric "in" value or the "fill" parameter.
type BufferUnit struct {
	script.Base
}

func (u *BufferUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("in", "number")}
}

func (u *BufferUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{script.Port("out", "samples")}
}

func (u *BufferUnit) Process(_ context.Context, in graph.Values, _ graph.UnitContext) (graph.Values, error) {
	fill := u.Number("fill", 0)
	if v, ok := script.ToFloat(in["in"]); ok {
		fill = v
	}
	size := int(u.Number("size", 16))
	if size < 0 {
		size = 0
	}
	return graph.Values{"out": NewSamples(size, fill)}, nil
}

func (u *BufferUnit) GenerateMetadata(current *metadata.Map) *metadata.Map {
	current.Set("samples", int(u.Number("size", 16)))
	return current
}
