package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mcpbridge/internal/app"
)

type cliOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		logLevel: "info",
		logger:   zap.NewNop(),
	}

	root := &cobra.Command{
		Use:           "mcpbridge",
		Short:         "Keep a local tool registry in sync with remote MCP servers",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd, &opts)
			logger, err := app.NewProcessLogger(opts.logLevel)
			if err != nil {
				return exitError{code: exitUsage, message: err.Error()}
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML or TOML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newServeCmd(&opts),
		newDiscoverCmd(&opts),
		newToolsCmd(&opts),
		newPingCmd(&opts),
		newInvokeCmd(&opts),
		newValidateCmd(&opts),
	)

	return root
}

// applyRootFlagBindings copies explicitly set persistent flags, which cobra
// parses onto the subcommand's flag set.
func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "log-level":
			opts.logLevel, _ = flags.GetString("log-level")
		case "json":
			opts.jsonOutput, _ = flags.GetBool("json")
		}
	})
}

func (o *cliOptions) serveConfig() app.ServeConfig {
	return app.ServeConfig{ConfigPath: o.configPath}
}

func versionString() string {
	if app.Build == "" {
		return app.Version
	}
	return app.Version + " (" + app.Build + ")"
}
