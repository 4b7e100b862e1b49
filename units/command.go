package units

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/metadata"
	"github.com/kbukum/nodeflow/process"
	"github.com/kbukum/nodeflow/script"
)

// CommandUnit runs an external command per pass. The "in" value is written
// to stdin and trimmed stdout becomes "out", as a number when it parses as
// one.
//
// Parameters: "command" (resolved against the scripts directory first),
// "args" (list or space separated string), "timeout" (seconds or a
// duration string) and "transient" (failures are retryable).
type CommandUnit struct {
	script.Base
	lastDuration time.Duration
}

func (u *CommandUnit) InputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{{Name: "in", DataType: "any", Flexible: true}}
}

func (u *CommandUnit) OutputPorts() []graph.PortDefinition {
	return []graph.PortDefinition{
		{Name: "out", DataType: "any", Flexible: true},
		script.Port("stderr", "string"),
	}
}

func (u *CommandUnit) Process(ctx context.Context, in graph.Values, uc graph.UnitContext) (graph.Values, error) {
	cmd, err := u.command(in, uc)
	if err != nil {
		return nil, err
	}
	if timeout := u.timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := process.Run(ctx, cmd)
	if res != nil {
		u.lastDuration = res.Duration
	}
	if err != nil {
		if transient, _ := u.Param("transient"); transient == true {
			return nil, errors.Unavailable(Command, err)
		}
		return nil, err
	}
	return graph.Values{"out": parseOutput(res.Text()), "stderr": strings.TrimSpace(string(res.Stderr))}, nil
}

// GenerateMetadata records the command and its run time.
func (u *CommandUnit) GenerateMetadata(current *metadata.Map) *metadata.Map {
	metadata.AddProcessingRecord(current, Command, map[string]any{
		"command":     u.Text("command", ""),
		"duration_ms": u.lastDuration.Milliseconds(),
	})
	return current
}

func (u *CommandUnit) command(in graph.Values, uc graph.UnitContext) (process.Command, error) {
	binary := u.Text("command", "")
	if binary == "" {
		return process.Command{}, errors.InvalidInput("command", "parameter is required")
	}
	args, err := u.args()
	if err != nil {
		return process.Command{}, err
	}

	cmd := process.Command{Binary: binary, Args: args}
	if uc != nil {
		cmd.Binary = process.Resolve(binary, uc.ScriptsDir())
		cmd.Dir = uc.WorkDir()
		env := uc.Environment()
		cmd.Env = []string{
			"NODEFLOW_GRAPH=" + env.GraphName,
			"NODEFLOW_INDEX=" + strconv.Itoa(env.Index),
		}
	}
	if v, ok := in["in"]; ok {
		cmd.Stdin = stdin(v)
	}
	return cmd, nil
}

func (u *CommandUnit) args() ([]string, error) {
	raw, ok := u.Param("args")
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v), nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			out = append(out, fmt.Sprint(a))
		}
		return out, nil
	}
	return nil, errors.InvalidInput("args", fmt.Sprintf("expected a list or string, got %T", raw))
}

func (u *CommandUnit) timeout() time.Duration {
	raw, ok := u.Param("timeout")
	if !ok {
		return 0
	}
	if s, isText := raw.(string); isText {
		d, _ := time.ParseDuration(s)
		return d
	}
	if secs, isNum := script.ToFloat(raw); isNum {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func stdin(v any) io.Reader {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return bytes.NewReader(x)
	case string:
		return strings.NewReader(x)
	}
	return strings.NewReader(fmt.Sprintln(v))
}

func parseOutput(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
