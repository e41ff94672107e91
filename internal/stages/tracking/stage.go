package tracking

import (
	"fmt"
	"log/slog"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
	"cytopipe/internal/stage"
)

// Stage runs the configured tracker over the phase-contrast segmentation.
type Stage struct {
	cfg     *config.Config
	tracker Tracker
	root    string
	logger  *slog.Logger
	sink    progress.Sink
}

// New resolves the configured tracker and builds the tracking stage.
func New(cfg *config.Config, root string, logger *slog.Logger, sink progress.Sink) (*Stage, error) {
	tracker, err := NewTracker(cfg.Tracking)
	if err != nil {
		return nil, err
	}
	return &Stage{
		cfg:     cfg,
		tracker: tracker,
		root:    root,
		logger:  logging.NewComponentLogger(logger, "tracking"),
		sink:    sink,
	}, nil
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "tracking" }

// Done implements stage.Stage.
func (s *Stage) Done(fov int) (bool, error) {
	pc := s.cfg.Channels.PhaseContrast
	if pc == nil {
		return true, nil
	}
	return paths.Exists(paths.Tracked(s.root, fov, pc.Channel)), nil
}

// Run implements stage.Stage.
func (s *Stage) Run(tok *cancel.Token, fov int) error {
	pc := s.cfg.Channels.PhaseContrast
	if pc == nil {
		s.logger.Info("no phase-contrast channel configured, skipping tracking",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}

	src := paths.Segmentation(s.root, fov, pc.Channel)
	if !paths.Exists(src) {
		return stage.MissingInput(s.Name(), src)
	}
	in, err := stack.ReadUint16(src)
	if err != nil {
		return fmt.Errorf("load segmentation: %w", err)
	}

	out := stack.NewUint16(in.Frames, in.Height, in.Width)
	if err := s.tracker.Track(in, out, tok, s.sink); err != nil {
		return fmt.Errorf("track fov %d: %w", fov, err)
	}
	if tok.Cancelled() {
		s.logger.Info("tracking cancelled", logging.Int(logging.FieldFOV, fov))
		return nil
	}

	dst := paths.Tracked(s.root, fov, pc.Channel)
	if err := stack.WriteUint16(dst, out); err != nil {
		return fmt.Errorf("write tracked labels: %w", err)
	}
	return nil
}
