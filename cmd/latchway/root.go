package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/version"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "latchway",
		Short:        "OpenAI-compatible gateway with sticky latch routing",
		Version:      version.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, serveDefaults())
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath(), "routing config file (json, toml or yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newInitCommand(opts),
		newModelsCommand(opts),
		newStateCommand(opts),
	)
	return root
}
