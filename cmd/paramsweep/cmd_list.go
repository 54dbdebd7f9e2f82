package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/paramsweep/internal/storage"
	"github.com/nvandessel/paramsweep/internal/trajectory"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored trajectories",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			names, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list trajectories: %w", err)
			}

			type entry struct {
				Name       string `json:"name"`
				Parameters int    `json:"parameters"`
				Results    int    `json:"results"`
				Runs       int    `json:"runs"`
			}
			entries := make([]entry, 0, len(names))
			for _, name := range names {
				// Skeleton loads skip leaf payloads, which keeps listing
				// cheap for trajectories holding large arrays.
				traj, err := store.LoadPartial(ctx, name, storage.LoadOptions{SkeletonOnly: true})
				if err != nil {
					return fmt.Errorf("failed to load %q: %w", name, err)
				}
				results := 0
				for _, rn := range traj.ResultNames() {
					if _, _, isMirror := trajectory.SplitMirrorResultName(rn); !isMirror {
						results++
					}
				}
				entries = append(entries, entry{
					Name:       name,
					Parameters: len(traj.ParameterNames()),
					Results:    results,
					Runs:       traj.NumRuns(),
				})
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"trajectories": entries,
					"count":        len(entries),
				})
				return nil
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No trajectories stored yet.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored trajectories (%d):\n\n", len(entries))
			for i, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, e.Name)
				fmt.Fprintf(cmd.OutOrStdout(), "   parameters: %d  results: %d  runs: %d\n", e.Parameters, e.Results, e.Runs)
			}

			return nil
		},
	}
}
