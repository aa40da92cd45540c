package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mandalnilabja/latchway/internal/config"
)

func newInitCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write an example routing config if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureConfigFile(opts.configPath); err != nil {
				return fmt.Errorf("write example config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", opts.configPath)
			return nil
		},
	}
}
