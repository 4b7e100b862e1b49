package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/units"
)

func newUnitsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the built-in unit types and their ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos := units.NewRegistry().Describe()
			out := cmd.OutOrStdout()
			if root.jsonOut {
				return printJSON(out, infos)
			}
			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "SCRIPT\tINPUTS\tOUTPUTS")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, portList(info.Inputs), portList(info.Outputs))
			}
			return tw.Flush()
		},
	}
}

func portList(ports []graph.PortDefinition) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, fmt.Sprintf("%s:%s", p.Name, p.DataType))
	}
	return strings.Join(parts, ", ")
}
