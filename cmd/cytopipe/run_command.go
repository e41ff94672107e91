package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"cytopipe/internal/logging"
	"cytopipe/internal/progress"
	"cytopipe/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the acquisition end to end",
		Long: "Run the full pipeline over the configured acquisition: frame copy, " +
			"segmentation, tracking, background estimation, cropping, and feature " +
			"extraction. Already-completed artifacts are skipped, so re-running " +
			"resumes where the previous run stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				OutputPaths: []string{
					"stdout",
					filepath.Join(cfg.Paths.LogDir, "cytopipe.log"),
				},
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			worker := workflow.NewWorker(cfg, logger, progress.NewLogSink(logger))

			// First signal cancels cooperatively; a second one kills us.
			signals := make(chan os.Signal, 2)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(signals)
			go func() {
				<-signals
				logger.Info("shutdown requested, finishing current work")
				worker.Cancel()
			}()

			ok, msg := worker.Run()
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			if !ok {
				return fmt.Errorf("run %s did not complete: %s", worker.RunID(), msg)
			}
			return nil
		},
	}
	return cmd
}
