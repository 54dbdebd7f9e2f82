package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect <trajectory> <result>",
		Short: "Collect one result across all runs of a trajectory",
		Long: `Print the values a named result took across the trajectory's runs,
in run-identifier order. Runs that did not produce the result are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, result := args[0], args[1]

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			traj, err := store.Load(context.Background(), name)
			if err != nil {
				return fmt.Errorf("failed to load %q: %w", name, err)
			}

			values := traj.CollectRuns(result)

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"trajectory": traj.Name(),
					"result":     result,
					"values":     values,
					"count":      len(values),
				})
				return nil
			}

			if len(values) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No run of %q produced result %q.\n", name, result)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s across %d runs of %s:\n", result, len(values), traj.Name())
			for _, v := range values {
				fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", v)
			}

			return nil
		},
	}
}
