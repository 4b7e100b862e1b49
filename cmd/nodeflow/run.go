package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/nodeflow/bootstrap"
	"github.com/kbukum/nodeflow/config"
	"github.com/kbukum/nodeflow/coordinator"
	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/units"
)

type runOptions struct {
	targets  []int
	index    int
	batch    int
	values   map[string]string
	params   []string
	outputs  bool
	progress bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Run one pass over a graph file or a named graph",
		Long: `Run loads a graph definition and executes one pass.

<graph> is a YAML file path, or a graph name searched in graphs.dirs.
Without --target every node runs; with it only the targets and their
upstream nodes run. The command fails when any node fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			return runGraph(cmd, root, cfg, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.IntSliceVarP(&opts.targets, "target", "t", nil, "node id to run with its upstream nodes (repeatable)")
	f.IntVar(&opts.index, "index", 0, "environment index handed to units")
	f.IntVar(&opts.batch, "batch", 1, "run this many full passes with indexes index..index+batch-1")
	f.StringToStringVar(&opts.values, "set", nil, "environment value key=value (repeatable)")
	f.StringArrayVarP(&opts.params, "param", "p", nil, "node parameter override id.name=value (repeatable)")
	f.BoolVar(&opts.outputs, "outputs", false, "print the stored outputs of each processed node")
	f.BoolVar(&opts.progress, "progress", true, "report node progress on stderr")
	return cmd
}

func runGraph(cmd *cobra.Command, root *rootOptions, cfg *config.Config, ref string, opts *runOptions) error {
	if opts.batch < 1 {
		return errors.InvalidInput("batch", "must be at least 1")
	}
	registry := units.NewRegistry()
	def, err := loadDefinition(cfg, ref)
	if err != nil {
		return err
	}
	g, err := graph.Build(def, registry)
	if err != nil {
		return err
	}
	if err := applyOverrides(g, opts.params); err != nil {
		return err
	}

	// stdout carries results.
	cfg.Logging.Output = "stderr"
	stampVersion(cfg)
	app, err := bootstrap.NewApp(cfg, bootstrap.WithQuiet())
	if err != nil {
		return err
	}
	for _, c := range telemetryComponents(cfg, app.Logger) {
		if err := app.RegisterComponent(c); err != nil {
			return err
		}
	}

	engineOpts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	var events coordinator.Events
	if opts.progress {
		stderr := cmd.ErrOrStderr()
		events.OnProgress = func(done, total int, nr engine.NodeResult) {
			fmt.Fprintf(stderr, "[%d/%d] #%d %s: %s (%s)\n", done, total, nr.ID, nr.Title, nr.Status, nr.Duration)
		}
	}
	coord := coordinator.New(
		coordinator.WithLogger(app.Logger),
		coordinator.WithEvents(events),
		coordinator.WithEngineOptions(engineOpts...),
	)
	app.OnStop(func(context.Context) error { return coord.Close() })

	values := make(map[string]any, len(opts.values))
	for k, v := range opts.values {
		values[k] = parseScalar(v)
	}

	return app.RunTask(cmd.Context(), func(ctx context.Context) error {
		results, err := execute(ctx, coord, g, values, opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if root.jsonOut {
			if err := printJSON(out, resultViews(coord.Engine(), results, opts.outputs)); err != nil {
				return err
			}
		} else {
			for _, res := range results {
				printResult(out, coord.Engine(), g, res, opts.outputs)
			}
		}
		for _, res := range results {
			if err := passError(res); err != nil {
				return err
			}
		}
		return nil
	})
}

// passError reports a pass that did not succeed or had failed nodes.
func passError(res engine.Result) error {
	switch {
	case !res.Succeeded:
		return fmt.Errorf("pass %s did not succeed: %s", res.PassID, res.Message)
	case res.FailedCount > 0:
		return fmt.Errorf("pass %s: nodes %v failed", res.PassID, res.Failed())
	}
	return nil
}

func execute(ctx context.Context, coord *coordinator.Coordinator, g *graph.Graph, values map[string]any, opts *runOptions) ([]engine.Result, error) {
	var targets []graph.NodeID
	if opts.targets != nil {
		targets = make([]graph.NodeID, 0, len(opts.targets))
		for _, t := range opts.targets {
			targets = append(targets, graph.NodeID(t))
		}
	}

	if opts.batch > 1 {
		envs := make([]engine.Environment, opts.batch)
		for i := range envs {
			envs[i] = engine.Environment{GraphName: g.Name, Index: opts.index + i, Values: values}
		}
		return coord.Engine().RunBatch(ctx, g, envs), nil
	}

	env := engine.Environment{GraphName: g.Name, Index: opts.index, Values: values}
	res, err := coord.RunPassAsync(ctx, g, env, targets).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return []engine.Result{res}, nil
}

// loadDefinition reads ref as a file when one exists, else as a graph name.
func loadDefinition(cfg *config.Config, ref string) (*graph.Definition, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return graph.LoadFile(ref)
	}
	return graph.NewFileLoader(cfg.Graphs.Dirs...).Load(ref)
}

// applyOverrides sets "id.name=value" parameter overrides on g.
func applyOverrides(g *graph.Graph, overrides []string) error {
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok {
			return errors.InvalidInput("param", fmt.Sprintf("%q: expected id.name=value", o))
		}
		idText, name, ok := strings.Cut(key, ".")
		if !ok || name == "" {
			return errors.InvalidInput("param", fmt.Sprintf("%q: expected id.name=value", o))
		}
		id, err := strconv.Atoi(idText)
		if err != nil {
			return errors.InvalidInput("param", fmt.Sprintf("%q: node id must be an integer", o))
		}
		n, ok := g.Node(graph.NodeID(id))
		if !ok {
			return errors.NotFound("node", idText)
		}
		if err := n.SetParameter(name, parseScalar(value)); err != nil {
			return err
		}
	}
	return nil
}

// parseScalar decodes a command-line value as a YAML scalar so numbers and
// booleans keep their type.
func parseScalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return v
}

// nodeView is the JSON form of one node in a printed result.
type nodeView struct {
	engine.NodeResult
	Outputs map[string]string `json:"outputs,omitempty"`
}

type resultView struct {
	engine.Result
	Nodes []nodeView `json:"nodes"`
}

func resultViews(e *engine.Engine, results []engine.Result, withOutputs bool) []resultView {
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		v := resultView{Result: res, Nodes: make([]nodeView, 0, len(res.Order))}
		for _, id := range res.Order {
			nv := nodeView{NodeResult: res.Nodes[id]}
			if withOutputs {
				nv.Outputs = formatOutputs(e, id)
			}
			v.Nodes = append(v.Nodes, nv)
		}
		views = append(views, v)
	}
	return views
}

func formatOutputs(e *engine.Engine, id graph.NodeID) map[string]string {
	values, ok := e.NodeOutput(id)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(values))
	for port, v := range values {
		out[port] = fmt.Sprintf("%v", v)
	}
	return out
}

func printResult(w io.Writer, e *engine.Engine, g *graph.Graph, res engine.Result, withOutputs bool) {
	outcome := "succeeded"
	switch {
	case !res.Succeeded:
		outcome = "did not succeed"
	case res.FailedCount > 0:
		outcome = "completed with failures"
	}
	fmt.Fprintf(w, "pass %s on %s (%s) %s in %s: %d processed, %d failed, %d cached\n",
		res.PassID, g.Name, res.Mode, outcome, res.Duration, res.ProcessedCount, res.FailedCount, res.CachedCount)
	if res.Message != "" {
		fmt.Fprintf(w, "  %s\n", res.Message)
	}
	if len(res.Order) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSCRIPT\tSTATUS\tDURATION\tERROR")
	for _, id := range res.Order {
		nr := res.Nodes[id]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", nr.ID, nr.Title, nr.Script, nr.Status, nr.Duration, nr.Message)
	}
	tw.Flush()

	if !withOutputs {
		return
	}
	for _, id := range res.Processed() {
		for port, v := range formatOutputs(e, id) {
			fmt.Fprintf(w, "  #%d.%s = %s\n", id, port, v)
		}
	}
}
