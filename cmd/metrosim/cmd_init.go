package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/store"
)

const configTemplate = `# metrosim configuration
# created: %s
#
# Environment variables (METROSIM_DB_PATH, METROSIM_DOCUMENTS_DIR,
# METROSIM_COMPRESS, METROSIM_LOG_LEVEL, METROSIM_SERVER_ADDRESS,
# METROSIM_JOB_TIMEOUT, METROSIM_BACKUP_DIR) override the values below.

database:
  path: ""        # default: .metrosim/metrosim.db

documents:
  dir: ""         # default: .metrosim/documents
  compress: false # write input documents as .json.gz

logging:
  level: info     # info, debug (adds .metrosim/jobs.jsonl) or trace

server:
  address: 127.0.0.1:8080

jobs:
  timeout: 30m
  retention: 1h     # how long finished jobs stay listed
  max_finished: 500 # 0 keeps any number

backup:
  dir: ""         # default: .metrosim/backups
  max_count: 10   # 0 keeps any number
  # max_age: 30d
  # max_total_size: 500MB
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a metrosim project in the root directory",
		Long: `Create the .metrosim/ state directory with a commented config.yaml
and an empty SQLite store. Existing files are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			stateDir := store.LocalPath(root)

			if err := os.MkdirAll(stateDir, 0700); err != nil {
				return fmt.Errorf("failed to create %s: %w", store.DirName, err)
			}

			configPath := filepath.Join(stateDir, "config.yaml")
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				content := fmt.Sprintf(configTemplate, time.Now().Format(time.RFC3339))
				if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
					return fmt.Errorf("failed to create config.yaml: %w", err)
				}
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Close(); err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status":   "initialized",
					"path":     stateDir,
					"database": a.cfg.DatabasePath(root),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s/ in %s\n", store.DirName, root)
			return nil
		},
	}
}
