package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/backup"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the curated dataset",
		Long: `Write every imported record (networks, preferences, OD matrices,
populations, parameter sets and runs) to a checksummed, compressed snapshot.
Generated agents and run results are not included.

Default location: <root>/.metrosim/backups/metrosim-snapshot-YYYYMMDD-HHMMSS.snapshot
Older snapshots are pruned by the backup.max_count, backup.max_age and
backup.max_total_size settings.

Examples:
  metrosim backup                     # Snapshot to the backup directory
  metrosim backup list                # List snapshots
  metrosim backup verify <file>       # Check a snapshot's checksum
  metrosim backup restore <file>      # Import a snapshot into the store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			policy, err := backup.NewPolicy(a.cfg.Backup.MaxCount, a.cfg.Backup.MaxAge, a.cfg.Backup.MaxTotalSize)
			if err != nil {
				return err
			}

			dir := a.cfg.BackupDir(a.root)
			absRoot, _ := filepath.Abs(a.root)
			res, err := backup.Create(cmd.Context(), a.repo, dir, map[string]string{
				"root":    absRoot,
				"version": version,
			})
			if err != nil {
				return err
			}

			pruned, err := backup.ApplyRetention(dir, policy)
			if err != nil {
				a.logger.Warn("failed to apply snapshot retention", "dir", dir, "error", err)
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if pruned == nil {
					pruned = []string{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"path":    res.Path,
					"header":  res.Header,
					"deleted": pruned,
				})
			}

			fmt.Fprintf(out, "Snapshot created: %d records\n", res.Header.Records)
			fmt.Fprintf(out, "  Path: %s\n", res.Path)
			if len(pruned) > 0 {
				fmt.Fprintf(out, "  Pruned %d old snapshot(s)\n", len(pruned))
			}
			return nil
		},
	}

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.BackupDir(root)

			snapshots, err := backup.List(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if snapshots == nil {
					snapshots = []backup.SnapshotInfo{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"directory": dir,
					"snapshots": snapshots,
				})
			}

			if len(snapshots) == 0 {
				fmt.Fprintf(out, "No snapshots found in %s\n", dir)
				return nil
			}

			var total int64
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCREATED\tRECORDS\tSIZE")
			for _, s := range snapshots {
				total += s.Size
				records := fmt.Sprint(s.Records)
				if !s.Valid {
					records = "(unreadable)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					filepath.Base(s.Path), s.CreatedAt.Local().Format(time.DateTime), records, humanize.Bytes(uint64(s.Size)))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d snapshot(s), %s in %s\n", len(snapshots), humanize.Bytes(uint64(total)), dir)
			return nil
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a snapshot's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			header, err := backup.ReadHeader(path)
			if err != nil {
				return fmt.Errorf("invalid snapshot %s: %w", path, err)
			}
			if err := backup.VerifyChecksum(path); err != nil {
				return fmt.Errorf("snapshot %s failed verification: %w", path, err)
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"path":   path,
					"valid":  true,
					"header": header,
				})
			}
			fmt.Fprintf(out, "Snapshot OK: %d records, created %s (%s)\n",
				header.Records, header.CreatedAt.Local().Format(time.DateTime), humanize.Time(header.CreatedAt))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Import a snapshot into the store",
		Long: `Verify a snapshot and import its records. Records that already exist
are updated in place; generated agents, run status and run results are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := backup.Restore(cmd.Context(), a.repo, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "Restored %d records from %s\n", res.Header.Records, res.Path)
			return nil
		},
	}
}
