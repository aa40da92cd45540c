package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/state"
	"github.com/mandalnilabja/latchway/internal/storage"
)

func newStateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or edit the shared routing state",
	}
	cmd.AddCommand(newStateShowCommand(opts), newStateUnpinCommand(opts))
	return cmd
}

func openState(cmd *cobra.Command, opts *options) (*state.Manager, error) {
	cfg := config.Load(opts.configPath)
	store, err := storage.Open(cmd.Context(), cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open %s state store: %w", cfg.State.Backend, err)
	}
	return state.NewManager(store), nil
}

func newStateShowCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print pins and request counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openState(cmd, opts)
			if err != nil {
				return err
			}
			defer m.Close()

			st, err := m.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			now := time.Now()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tPIN")
			for _, cat := range sortedKeys(st.DefaultModels) {
				fmt.Fprintf(tw, "%s\t%s\n", cat, st.DefaultModels[cat])
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "BACKEND\t24H\t7D")
			for _, backend := range sortedKeys(st.RequestTimestamps) {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", backend,
					st.RequestCount(backend, now.Add(-24*time.Hour)),
					st.RequestCount(backend, now.Add(-storage.RequestRetention)))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw state document")
	return cmd
}

func newStateUnpinCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <category>",
		Short: "Remove the sticky pin for a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := args[0]

			m, err := openState(cmd, opts)
			if err != nil {
				return err
			}
			defer m.Close()

			current, err := m.Pin(cmd.Context(), category)
			if err != nil {
				return err
			}
			if current == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not pinned\n", category)
				return nil
			}

			removed, err := m.ClearPin(cmd.Context(), category, current)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unpinned %s\n", category, current)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: pin changed concurrently, left as is\n", category)
			}
			return nil
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
