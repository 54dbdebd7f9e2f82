package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/paramsweep/internal/config"
	"github.com/nvandessel/paramsweep/internal/constants"
	"github.com/nvandessel/paramsweep/internal/storage"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the paramsweep config directory and store",
		Long: `Create ~/.paramsweep/ with a default config.yaml and an empty sweep store.

Existing files are left untouched, so init is safe to re-run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("failed to get home directory: %w", err)
				}
				dir = filepath.Join(homeDir, constants.ConfigDirName)
			}

			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Write a default config.yaml unless one already exists.
			configPath := filepath.Join(dir, constants.ConfigFileName)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				cfg := config.Default()
				cfg.Storage.Path = filepath.Join(dir, constants.StoreFileName)
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				if err := os.WriteFile(configPath, data, 0644); err != nil {
					return fmt.Errorf("failed to write config.yaml: %w", err)
				}
			}

			// Opening the store creates the database and its schema.
			storePath := filepath.Join(dir, constants.StoreFileName)
			store, err := storage.NewSQLiteService(storePath)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			store.Close()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "initialized",
					"path":   dir,
					"store":  storePath,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", dir)
				fmt.Fprintf(cmd.OutOrStdout(), "  config: %s\n", configPath)
				fmt.Fprintf(cmd.OutOrStdout(), "  store:  %s\n", storePath)
			}

			return nil
		},
	}

	cmd.Flags().String("dir", "", "Directory to initialize (default ~/.paramsweep)")

	return cmd
}
