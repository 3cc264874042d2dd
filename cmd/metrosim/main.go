package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "metrosim",
		Short: "Metrosim - population synthesis and simulator document translation",
		Long: `metrosim prepares METROPOLIS simulation runs.

It imports curated networks, preferences and OD matrices, synthesizes
agent populations, writes the simulator input documents of a run and
ingests the simulator's output back into the store.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: <root>/.metrosim/config.yaml, then ~/.metrosim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newImportCmd(),
		newGenerateCmd(),
		newClearAgentsCmd(),
		newWriteInputCmd(),
		newIngestCmd(),
		newStatusCmd(),
		newJobsCmd(),
		newBackupCmd(),
		newConfigCmd(),
		newServeCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
