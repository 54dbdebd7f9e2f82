package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/paramsweep/internal/config"
	"github.com/nvandessel/paramsweep/internal/storage"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paramsweep",
		Short: "Parameter sweeps with persistent run histories",
		Long: `paramsweep manages parameter-sweep experiments and their run histories.

Simulations declare parameters and results on a trajectory, sweep an
exploration space, and persist every run. This CLI inspects and exports
stored trajectories; sweeps themselves are driven from Go code.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for machine consumption)")
	rootCmd.PersistentFlags().String("store", "", "Path to the sweep store (overrides config)")

	// Add subcommands
	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newListCmd(),
		newShowCmd(),
		newRunsCmd(),
		newCollectCmd(),
		newExportCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig loads the effective configuration, with the --store flag taking
// precedence over the config file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if storePath, _ := cmd.Flags().GetString("store"); storePath != "" {
		cfg.Storage.Path = storePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore opens the persistent store for the effective configuration.
// The caller owns the returned service and must Close it.
func openStore(cmd *cobra.Command) (storage.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteService(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}
