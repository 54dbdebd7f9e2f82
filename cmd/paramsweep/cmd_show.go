package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/paramsweep/internal/trajectory"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <trajectory>",
		Short: "Show a trajectory's parameters and results",
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

			type paramView struct {
				Name    string      `json:"name"`
				Value   interface{} `json:"value"`
				Comment string      `json:"comment,omitempty"`
			}
			type resultView struct {
				Name    string      `json:"name"`
				Value   interface{} `json:"value"`
				Comment string      `json:"comment,omitempty"`
			}

			params := make([]paramView, 0, len(traj.ParameterNames()))
			for _, pn := range traj.ParameterNames() {
				p, err := traj.Parameter(pn)
				if err != nil {
					return err
				}
				params = append(params, paramView{Name: pn, Value: p.Value, Comment: p.Comment})
			}

			var results []resultView
			for _, rn := range traj.ResultNames() {
				// Per-run mirrors show up under 'paramsweep runs'.
				if _, _, isMirror := trajectory.SplitMirrorResultName(rn); isMirror {
					continue
				}
				r, err := traj.Result(rn)
				if err != nil {
					return err
				}
				results = append(results, resultView{Name: rn, Value: r.Value, Comment: r.Comment})
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"name":       traj.Name(),
					"parameters": params,
					"results":    results,
					"run_count":  traj.NumRuns(),
				})
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Trajectory: %s\n", traj.Name())
			fmt.Fprintf(cmd.OutOrStdout(), "Runs: %d\n\n", traj.NumRuns())

			fmt.Fprintf(cmd.OutOrStdout(), "Parameters (%d):\n", len(params))
			for _, p := range params {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %v\n", p.Name, p.Value)
				if p.Comment != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", p.Comment)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())

			fmt.Fprintf(cmd.OutOrStdout(), "Results (%d):\n", len(results))
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %v\n", r.Name, r.Value)
				if r.Comment != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", r.Comment)
				}
			}

			return nil
		},
	}
}
