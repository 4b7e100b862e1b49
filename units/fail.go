package units

import (
	"context"
	stderrors "errors"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/script"
)

// FailUnit always fails with its "message" parameter. With "transient" set
// the failure is retryable.
type FailUnit struct {
	script.Base
}

func (u *FailUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "in", DataType: "any", Flexible: true}}
}

func (u *FailUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "out", DataType: "any", Flexible: true}}
}

func (u *FailUnit) Process(context.Context, graph.Values, graph.UnitContext) (graph.Values, error) {
	cause := stderrors.New(u.Text("message", "unit failed"))
	if transient, _ := u.Param("transient"); transient == true {
		return nil, errors.Unavailable(Fail, cause)
	}
	return nil, cause
}
