package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <population-id>",
		Short: "Synthesize the agents of a population",
		Long: `Draw every agent of a population from its segments' preferences and
OD matrices, then store them in one transaction.

Without --seed, the population's recorded seed is reused, or a fresh one is
drawn and recorded so the population can be reproduced.

Example:
  metrosim generate 1 --seed 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var seed *int64
			if cmd.Flags().Changed("seed") {
				v, _ := cmd.Flags().GetInt64("seed")
				seed = &v
			}
			return withApp(cmd, func(a *app) (workflow.Task, error) {
				return a.svc.GenerateTask(cmd.Context(), id, seed)
			})
		},
	}
	cmd.Flags().Int64("seed", 0, "Random seed (default: the population's recorded seed, else a fresh one)")
	return cmd
}

func newClearAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-agents <population-id>",
		Short: "Delete the agents of a population so it can be generated again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) (workflow.Task, error) {
				return a.svc.ClearAgentsTask(cmd.Context(), id)
			})
		},
	}
}

func newWriteInputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-input <run-id>",
		Short: "Write the simulator input documents of a run",
		Long: `Assemble the network, vehicles, agents and parameters of a run into the
simulator's input document under the document directory.

The run's population must have been generated first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) (workflow.Task, error) {
				return a.svc.WriteInputTask(cmd.Context(), id)
			})
		},
	}
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <run-id>",
		Short: "Store the simulator output of a run",
		Long: `Read a run's output document and replace its stored agent results,
road paths and edge results in one transaction.

Without --output, runs/<id>/output.json is read, falling back to
runs/<id>/output.json.gz.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			return withApp(cmd, func(a *app) (workflow.Task, error) {
				return a.svc.IngestTask(cmd.Context(), id, output)
			})
		},
	}
	cmd.Flags().String("output", "", "Output document name inside the document directory")
	return cmd
}

// withApp opens the app, builds a task and runs it to completion.
func withApp(cmd *cobra.Command, build func(a *app) (workflow.Task, error)) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := build(a)
	if err != nil {
		return err
	}
	job, err := a.svc.Run(cmd.Context(), task)
	if job.ID == "" {
		return err
	}
	if perr := printJob(cmd, job); perr != nil {
		return perr
	}
	if job.Status == jobs.StatusFailed {
		return errors.New(job.Message)
	}
	return nil
}

func printJob(cmd *cobra.Command, job jobs.Job) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(job)
	}
	if job.Status == jobs.StatusSucceeded {
		fmt.Fprintln(cmd.OutOrStdout(), job.Message)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", s)
	}
	return id, nil
}
