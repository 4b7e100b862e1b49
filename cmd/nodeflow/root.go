package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/nodeflow/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	envFile    string
	jsonOut    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "nodeflow",
		Short: "Node graph execution engine",
		Long: `nodeflow executes directed graphs of processing units.

Examples:
  # Run every node of a graph file
  nodeflow run graphs/pipeline.yaml

  # Run node 4 and whatever it depends on
  nodeflow run graphs/pipeline.yaml --target 4

  # Check a graph file without running it
  nodeflow validate graphs/pipeline.yaml

  # Serve graphs over HTTP with server-sent pass events
  nodeflow serve --config config.yml`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default: searched in ./cmd/nodeflow, ./config, .)")
	flags.StringVar(&opts.envFile, "env-file", "", ".env file to load before reading NODEFLOW_* variables")
	flags.BoolVarP(&opts.jsonOut, "json", "j", false, "print results as JSON")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newValidateCmd(opts),
		newUnitsCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}

// loadConfig reads the service configuration the persistent flags point at.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var loaderOpts []config.LoaderOption
	if o.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(o.configFile))
	}
	if o.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(o.envFile))
	}
	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}
