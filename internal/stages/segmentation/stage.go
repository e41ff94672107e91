package segmentation

import (
	"fmt"
	"log/slog"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/labels"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
	"cytopipe/internal/stage"
)

// Stage labels cells per frame in the phase-contrast channel. Without a
// configured PC channel the stage is a documented no-op. A cancellation
// observed mid-stack discards the in-memory result; the output file is only
// written when every frame completed, so a resumed run redoes the FOV from
// scratch.
type Stage struct {
	cfg    *config.Config
	method Method
	root   string
	logger *slog.Logger
	sink   progress.Sink
}

// New resolves the configured method and builds the segmentation stage.
func New(cfg *config.Config, root string, logger *slog.Logger, sink progress.Sink) (*Stage, error) {
	method, err := NewMethod(cfg.Segmentation)
	if err != nil {
		return nil, err
	}
	return &Stage{
		cfg:    cfg,
		method: method,
		root:   root,
		logger: logging.NewComponentLogger(logger, "segmentation"),
		sink:   sink,
	}, nil
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "segmentation" }

// Done implements stage.Stage. With no PC channel there is nothing to
// produce, so the stage reports done.
func (s *Stage) Done(fov int) (bool, error) {
	pc := s.cfg.Channels.PhaseContrast
	if pc == nil {
		return true, nil
	}
	return paths.Exists(paths.Segmentation(s.root, fov, pc.Channel)), nil
}

// Run implements stage.Stage.
func (s *Stage) Run(tok *cancel.Token, fov int) error {
	pc := s.cfg.Channels.PhaseContrast
	if pc == nil {
		s.logger.Info("no phase-contrast channel configured, skipping segmentation",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}

	src := paths.Frames(s.root, fov, pc.Channel)
	if !paths.Exists(src) {
		return stage.MissingInput(s.Name(), src)
	}
	frames, err := stack.ReadUint16(src)
	if err != nil {
		return fmt.Errorf("load frame stack: %w", err)
	}

	out := stack.NewUint16(frames.Frames, frames.Height, frames.Width)
	mask := make([]bool, frames.Height*frames.Width)
	passes := s.cfg.Segmentation.SmoothPasses

	for t := 0; t < frames.Frames; t++ {
		if tok.Cancelled() {
			s.logger.Info("segmentation cancelled",
				logging.Int(logging.FieldFOV, fov),
				logging.Int("frames_done", t),
			)
			return nil
		}
		s.method.Threshold(frames.Frame(t), frames.Height, frames.Width, mask)
		labels.FillHoles(mask, frames.Height, frames.Width)
		smoothed := labels.Closed(
			labels.Opened(mask, frames.Height, frames.Width, passes),
			frames.Height, frames.Width, passes,
		)
		if _, err := labels.ConnectedComponents(smoothed, frames.Height, frames.Width, out.Frame(t)); err != nil {
			return fmt.Errorf("label frame %d: %w", t, err)
		}
		labels.FilterBySize(out.Frame(t), frames.Height, frames.Width,
			s.cfg.Segmentation.MinCellArea, s.cfg.Segmentation.MaxCellArea)
		s.sink.Report(t+1, frames.Frames, fmt.Sprintf("segment fov %d", fov))
	}

	dst := paths.Segmentation(s.root, fov, pc.Channel)
	if err := stack.WriteUint16(dst, out); err != nil {
		return fmt.Errorf("write segmentation: %w", err)
	}
	return nil
}
