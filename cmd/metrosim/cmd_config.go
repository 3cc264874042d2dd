package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect metrosim configuration",
		Long: `Show the effective configuration after defaults, the config file and
environment overrides are applied.

Examples:
  metrosim config show          # Effective settings as YAML
  metrosim config show --json   # Effective settings as JSON`,
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Resolve defaults so the output names the paths actually used.
			resolved := *cfg
			resolved.Database.Path = cfg.DatabasePath(root)
			resolved.Documents.Dir = cfg.DocumentsDir(root)
			resolved.Backup.Dir = cfg.BackupDir(root)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resolved)
			}

			data, err := yaml.Marshal(&resolved)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
