package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/logging"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's status and, once ingested, a summary of its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.repo.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}

			var summary *models.RunSummary
			if run.Status == models.RunIngested {
				results, err := a.repo.ListAgentResults(cmd.Context(), id)
				if err != nil {
					return err
				}
				s := models.Summarize(results)
				summary = &s
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"run":     run,
					"summary": summary,
				})
			}

			fmt.Fprintf(out, "Run %d (%s)\n", run.ID, run.Name)
			fmt.Fprintf(out, "  status:      %s\n", run.Status)
			fmt.Fprintf(out, "  population:  %d\n", run.PopulationID)
			fmt.Fprintf(out, "  input:       %s\n", valueOrDefault(run.InputPath, "(not written)"))
			if g := run.InputGeneration; g != nil {
				fmt.Fprintf(out, "  written for: seed %d, %d agents\n", g.Seed, g.Agents)
			}
			fmt.Fprintf(out, "  output:      %s\n", valueOrDefault(run.OutputPath, "(not ingested)"))
			if summary != nil {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  agents:              %d (%d by car)\n", summary.Agents, summary.CarAgents)
				fmt.Fprintf(out, "  mean utility:        %.4f\n", summary.MeanUtility)
				fmt.Fprintf(out, "  mean surplus:        %.4f\n", summary.MeanSurplus)
				fmt.Fprintf(out, "  mean departure time: %.1f s\n", summary.MeanDepartureTime)
				fmt.Fprintf(out, "  mean travel time:    %.1f s\n", summary.MeanTravelTime)
			}
			return nil
		},
	}
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent job events",
		Long: `Show the tail of .metrosim/jobs.jsonl.

Job events are only recorded when logging.level is debug or trace.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			limit, _ := cmd.Flags().GetInt("limit")

			events, err := logging.ReadJobLog(store.LocalPath(root), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if events == nil {
					events = []logging.JobEvent{}
				}
				return json.NewEncoder(out).Encode(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No job events recorded (set logging.level to debug to record them).")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tJOB\tKIND\tTARGET\tSTATUS\tMESSAGE")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.Time.Local().Format(time.DateTime), shortID(ev.JobID), ev.Kind, ev.Target, ev.Status, ev.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Number of most recent events to show (0 for all)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
