package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/paths"
)

func newFOVsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fovs",
		Short: "Show per-FOV artifact completeness",
		Long: "List every FOV directory under the output root and which stage " +
			"artifacts exist for it, so a partially processed acquisition can be " +
			"inspected before resuming.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if meta, err := acquisition.LoadMetadata(cfg.Paths.AcquisitionDir); err == nil {
				fmt.Fprintf(out, "Acquisition %s: %d fovs, %d channels, %d frames, %dx%d\n",
					meta.Name, meta.FOVs, meta.Channels, meta.Frames, meta.Height, meta.Width)
			}

			fovs, err := paths.ListFOVs(cfg.Paths.OutputDir)
			if err != nil {
				return err
			}
			if len(fovs) == 0 {
				fmt.Fprintln(out, "No FOV output yet.")
				return nil
			}

			channels := cfg.SelectedChannels()
			pcChannel := -1
			if cfg.Channels.PhaseContrast != nil {
				pcChannel = cfg.Channels.PhaseContrast.Channel
			}
			rows := make([][]string, 0, len(fovs))
			for _, fov := range fovs {
				set := paths.Discover(cfg.Paths.OutputDir, fov, channels)
				rows = append(rows, []string{
					strconv.Itoa(fov),
					countMark(set.Frames, len(channels)),
					channelMark(set.Segmentation, pcChannel),
					channelMark(set.Tracked, pcChannel),
					countMark(set.Background, len(cfg.Channels.Fluorescence)),
					boolMark(set.Crops),
					boolMark(set.Features),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"FOV", "Frames", "Segmentation", "Tracked", "Background", "Crops", "Features"},
				rows, 1))
			return nil
		},
	}
	return cmd
}

func boolMark(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

// countMark summarizes channel-granular artifacts as present/total.
func countMark(present map[int]bool, total int) string {
	if total == 0 {
		return "-"
	}
	n := 0
	for _, ok := range present {
		if ok {
			n++
		}
	}
	return fmt.Sprintf("%d/%d", n, total)
}

// channelMark reports a single channel's artifact, or "-" when no PC
// channel is configured.
func channelMark(present map[int]bool, channel int) string {
	if channel < 0 {
		return "-"
	}
	return boolMark(present[channel])
}
