package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <trajectory>",
		Short: "List a trajectory's recorded runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name := args[0]

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			traj, err := store.Load(context.Background(), name)
			if err != nil {
				return fmt.Errorf("failed to load %q: %w", name, err)
			}

			runs := traj.Runs()

			if jsonOut {
				type runView struct {
					ID        string                 `json:"id"`
					Params    map[string]interface{} `json:"params"`
					Results   map[string]interface{} `json:"results"`
					Timestamp time.Time              `json:"timestamp"`
				}
				views := make([]runView, 0, len(runs))
				for _, run := range runs {
					views = append(views, runView{
						ID:        run.ID,
						Params:    run.Params,
						Results:   run.Results,
						Timestamp: run.Timestamp,
					})
				}
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"trajectory": traj.Name(),
					"runs":       views,
					"count":      len(views),
				})
				return nil
			}

			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded for %q yet.\n", name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Runs of %s (%d):\n\n", traj.Name(), len(runs))
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s]\n", run.ID, run.Timestamp.Format(time.RFC3339))
				fmt.Fprintf(cmd.OutOrStdout(), "  params:  %v\n", run.Params)
				fmt.Fprintf(cmd.OutOrStdout(), "  results: %v\n", run.Results)
			}

			return nil
		},
	}
}
