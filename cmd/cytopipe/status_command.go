package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cytopipe/internal/preflight"
	"cytopipe/internal/runlog"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showRuns int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			checks := preflight.RunAll(cfg)
			rows := make([][]string, 0, len(checks))
			for _, c := range checks {
				mark := "ok"
				if !c.Passed {
					mark = "FAIL"
				}
				rows = append(rows, []string{c.Name, mark, c.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows))

			store, err := runlog.Open(cfg.Paths.OutputDir)
			if err != nil {
				fmt.Fprintf(out, "run log unavailable: %v\n", err)
				return nil
			}
			defer store.Close()

			runs, err := store.ListRuns(context.Background())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs.")
				return nil
			}
			if showRuns > 0 && len(runs) > showRuns {
				runs = runs[:showRuns]
			}

			runRows := make([][]string, 0, len(runs))
			for _, r := range runs {
				finished := "-"
				if !r.FinishedAt.IsZero() {
					finished = r.FinishedAt.Local().Format(time.RFC3339)
				}
				runRows = append(runRows, []string{
					r.ID,
					r.StartedAt.Local().Format(time.RFC3339),
					finished,
					r.State,
					strconv.Itoa(r.Completed) + "/" + strconv.Itoa(r.Total),
					strconv.Itoa(r.Failed),
					strconv.Itoa(r.Cancelled),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Finished", "State", "Completed", "Failed", "Cancelled"},
				runRows, 5, 6, 7))
			return nil
		},
	}
	cmd.Flags().IntVar(&showRuns, "runs", 10, "Number of recent runs to display (0 for all)")
	return cmd
}
