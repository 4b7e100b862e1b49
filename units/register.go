package units

import (
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/script"
)

// Script type keys.
const (
	Constant    = "constant"
	Scale       = "scale"
	Sum         = "sum"
	Passthrough = "passthrough"
	Buffer      = "buffer"
	Annotate    = "annotate"
	Fail        = "fail"
	Command     = "command"
)

// Register adds every built-in unit to r.
func Register(r *script.Registry) {
	r.Register(Constant, func() graph.Unit { return &ConstantUnit{} })
	r.Register(Scale, func() graph.Unit { return &ScaleUnit{} })
	r.Register(Sum, func() graph.Unit { return &SumUnit{} })
	r.Register(Passthrough, func() graph.Unit { return &PassthroughUnit{} })
	r.Register(Buffer, func() graph.Unit { return &BufferUnit{} })
	r.Register(Annotate, func() graph.Unit { return &AnnotateUnit{} })
	r.Register(Fail, func() graph.Unit { return &FailUnit{} })
	r.Register(Command, func() graph.Unit { return &CommandUnit{} })
}

// NewRegistry returns a registry holding the built-in units.
func NewRegistry() *script.Registry {
	r := script.NewRegistry()
	Register(r)
	return r
}
