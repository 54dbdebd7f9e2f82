package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/paramsweep/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server over stdio",
		Long: `Expose stored trajectories to MCP clients over stdio transport.

The server provides read-only tools: sweep_list, sweep_show, sweep_runs,
and sweep_collect. It blocks until the client disconnects or a shutdown
signal arrives.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "paramsweep",
				Version:   version,
				StorePath: cfg.Storage.Path,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			notifySignals(sigChan)
			go func() {
				<-sigChan
				cancel()
			}()

			return server.Run(ctx)
		},
	}
}
