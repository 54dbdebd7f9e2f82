package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <trajectory>",
		Short: "Export a trajectory's runs as JSONL",
		Long: `Write one JSON object per recorded run: identifier, parameter snapshot,
results, and timestamp. Defaults to stdout; use --output to write a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
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

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			enc := json.NewEncoder(out)
			for _, run := range traj.Runs() {
				line := map[string]interface{}{
					"id":        run.ID,
					"params":    run.Params,
					"results":   run.Results,
					"timestamp": run.Timestamp.Format(time.RFC3339Nano),
				}
				if err := enc.Encode(line); err != nil {
					return fmt.Errorf("failed to write run %s: %w", run.ID, err)
				}
			}

			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs of %s to %s\n", traj.NumRuns(), traj.Name(), output)
			}

			return nil
		},
	}

	cmd.Flags().String("output", "", "Write JSONL to this file instead of stdout")

	return cmd
}
