// Package framecopy extracts per-channel frame stacks from the source
// acquisition into the output tree. It is the only stage touching the
// source decoder; everything downstream reads the copied artifacts.
package framecopy

import (
	"fmt"
	"log/slog"
	"os"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
)

// Stage copies one frame at a time per selected channel, checking the
// cancellation token before each frame. Cancellation removes the partial
// stack and is not an error.
type Stage struct {
	cfg    *config.Config
	reader acquisition.FrameReader
	root   string
	logger *slog.Logger
	sink   progress.Sink
}

// New builds the frame-copy stage.
func New(cfg *config.Config, reader acquisition.FrameReader, root string, logger *slog.Logger, sink progress.Sink) *Stage {
	return &Stage{
		cfg:    cfg,
		reader: reader,
		root:   root,
		logger: logging.NewComponentLogger(logger, "framecopy"),
		sink:   sink,
	}
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "copy" }

// Done reports whether every selected channel's frame stack exists for fov.
func (s *Stage) Done(fov int) (bool, error) {
	for _, ch := range s.cfg.SelectedChannels() {
		if !paths.Exists(paths.Frames(s.root, fov, ch)) {
			return false, nil
		}
	}
	return true, nil
}

// Run implements stage.Stage.
func (s *Stage) Run(tok *cancel.Token, fov int) error {
	meta := s.reader.Metadata()
	if err := os.MkdirAll(paths.FOVDir(s.root, fov), 0o755); err != nil {
		return fmt.Errorf("create fov directory: %w", err)
	}

	for _, ch := range s.cfg.SelectedChannels() {
		dst := paths.Frames(s.root, fov, ch)
		if paths.Exists(dst) {
			s.logger.Debug("frame stack exists, skipping",
				logging.Int(logging.FieldFOV, fov),
				logging.Int(logging.FieldChannel, ch),
			)
			continue
		}
		if err := s.copyChannel(tok, fov, ch, dst, meta); err != nil {
			return err
		}
		if tok.Cancelled() {
			return nil
		}
	}
	return nil
}

func (s *Stage) copyChannel(tok *cancel.Token, fov, ch int, dst string, meta *acquisition.Metadata) error {
	fw, err := stack.NewFrameWriter(dst, meta.Frames, meta.Height, meta.Width)
	if err != nil {
		return fmt.Errorf("open frame stack fov=%d channel=%d: %w", fov, ch, err)
	}
	for t := 0; t < meta.Frames; t++ {
		if tok.Cancelled() {
			fw.Abort()
			s.logger.Info("copy cancelled",
				logging.Int(logging.FieldFOV, fov),
				logging.Int(logging.FieldChannel, ch),
				logging.Int("frames_copied", t),
			)
			return nil
		}
		plane, err := s.reader.ReadPlane(fov, ch, t)
		if err != nil {
			fw.Abort()
			return fmt.Errorf("read source plane fov=%d channel=%d frame=%d: %w", fov, ch, t, err)
		}
		if err := fw.WriteFrame(plane); err != nil {
			fw.Abort()
			return fmt.Errorf("copy fov=%d channel=%d frame=%d: %w", fov, ch, t, err)
		}
		s.sink.Report(t+1, meta.Frames, fmt.Sprintf("copy fov %d channel %d", fov, ch))
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("finalize frame stack fov=%d channel=%d: %w", fov, ch, err)
	}
	return nil
}
