package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mandalnilabja/latchway/internal/config"
)

func newModelsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured categories and their backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := config.ParseFile(opts.configPath)
			if err != nil {
				return err
			}
			snap := config.NewSnapshot(fc)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tLATCH\tNON-LATCH")
			for _, cat := range snap.Categories() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", cat,
					names(snap.Candidates(cat, true)),
					names(snap.Candidates(cat, false)))
			}
			return tw.Flush()
		},
	}
}

func names(backends []config.Backend) string {
	if len(backends) == 0 {
		return "-"
	}
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.Name
	}
	return strings.Join(out, ", ")
}
