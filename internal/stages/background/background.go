// Package background estimates a smooth fluorescence background surface per
// frame by averaging background-only pixels over a coarse tile grid and
// interpolating bilinearly between tile centers. Foreground pixels are
// excluded using the segmentation mask.
package background

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
	"cytopipe/internal/stage"
)

// Stage estimates per-channel backgrounds. A FOV needs both a PC channel
// (for the mask) and at least one FL channel; otherwise the stage is a
// no-op. Channels whose output already exists are skipped independently,
// giving resumability at channel granularity.
type Stage struct {
	cfg    *config.Config
	root   string
	logger *slog.Logger
	sink   progress.Sink
}

// New builds the background-estimation stage.
func New(cfg *config.Config, root string, logger *slog.Logger, sink progress.Sink) *Stage {
	return &Stage{
		cfg:    cfg,
		root:   root,
		logger: logging.NewComponentLogger(logger, "background"),
		sink:   sink,
	}
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "background" }

func (s *Stage) applicable() bool {
	return s.cfg.Channels.PhaseContrast != nil && len(s.cfg.Channels.Fluorescence) > 0
}

// Done implements stage.Stage.
func (s *Stage) Done(fov int) (bool, error) {
	if !s.applicable() {
		return true, nil
	}
	for _, sel := range s.cfg.Channels.Fluorescence {
		if !paths.Exists(paths.Background(s.root, fov, sel.Channel)) {
			return false, nil
		}
	}
	return true, nil
}

// Run implements stage.Stage.
func (s *Stage) Run(tok *cancel.Token, fov int) error {
	if !s.applicable() {
		s.logger.Info("background estimation needs a PC and at least one FL channel, skipping",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}
	pc := s.cfg.Channels.PhaseContrast

	segPath := paths.Segmentation(s.root, fov, pc.Channel)
	if !paths.Exists(segPath) {
		return stage.MissingInput(s.Name(), segPath)
	}
	seg, err := stack.ReadUint16(segPath)
	if err != nil {
		return fmt.Errorf("load segmentation: %w", err)
	}

	for _, sel := range s.cfg.Channels.Fluorescence {
		dst := paths.Background(s.root, fov, sel.Channel)
		if paths.Exists(dst) {
			s.logger.Debug("background exists, skipping channel",
				logging.Int(logging.FieldFOV, fov),
				logging.Int(logging.FieldChannel, sel.Channel),
			)
			continue
		}

		framesPath := paths.Frames(s.root, fov, sel.Channel)
		if !paths.Exists(framesPath) {
			return stage.MissingInput(s.Name(), framesPath)
		}
		frames, err := stack.ReadUint16(framesPath)
		if err != nil {
			return fmt.Errorf("load fl frames channel %d: %w", sel.Channel, err)
		}
		if len(frames.Data) != len(seg.Data) {
			return fmt.Errorf("fl channel %d shape differs from segmentation", sel.Channel)
		}

		out := stack.NewFloat64(frames.Frames, frames.Height, frames.Width)
		cancelled := false
		for t := 0; t < frames.Frames; t++ {
			if tok.Cancelled() {
				cancelled = true
				break
			}
			estimateFrame(frames.Frame(t), seg.Frame(t), frames.Height, frames.Width,
				s.cfg.Background.TileSize, out.Frame(t))
			s.sink.Report(t+1, frames.Frames,
				fmt.Sprintf("background fov %d channel %d", fov, sel.Channel))
		}
		if cancelled {
			s.logger.Info("background estimation cancelled",
				logging.Int(logging.FieldFOV, fov),
				logging.Int(logging.FieldChannel, sel.Channel),
			)
			return nil
		}

		if err := stack.WriteFloat64(dst, out); err != nil {
			return fmt.Errorf("write background channel %d: %w", sel.Channel, err)
		}
	}
	return nil
}

// estimateFrame fills out with a smooth surface fitted to the background
// pixels of one frame. Tiles with no background pixels fall back to the
// frame-wide background mean.
func estimateFrame(frame, seg []uint16, height, width, tileSize int, out []float64) {
	tilesY := (height + tileSize - 1) / tileSize
	tilesX := (width + tileSize - 1) / tileSize

	means := make([]float64, tilesY*tilesX)
	centersY := make([]float64, tilesY)
	centersX := make([]float64, tilesX)

	var global []float64
	for i, v := range frame {
		if seg[i] == 0 {
			global = append(global, float64(v))
		}
	}
	globalMean := 0.0
	if len(global) > 0 {
		globalMean = stat.Mean(global, nil)
	}

	var tilePixels []float64
	for ty := 0; ty < tilesY; ty++ {
		y0 := ty * tileSize
		y1 := y0 + tileSize
		if y1 > height {
			y1 = height
		}
		centersY[ty] = (float64(y0) + float64(y1-1)) / 2
		for tx := 0; tx < tilesX; tx++ {
			x0 := tx * tileSize
			x1 := x0 + tileSize
			if x1 > width {
				x1 = width
			}
			if ty == 0 {
				centersX[tx] = (float64(x0) + float64(x1-1)) / 2
			}
			tilePixels = tilePixels[:0]
			for y := y0; y < y1; y++ {
				base := y * width
				for x := x0; x < x1; x++ {
					if seg[base+x] == 0 {
						tilePixels = append(tilePixels, float64(frame[base+x]))
					}
				}
			}
			if len(tilePixels) > 0 {
				means[ty*tilesX+tx] = stat.Mean(tilePixels, nil)
			} else {
				means[ty*tilesX+tx] = globalMean
			}
		}
	}

	for y := 0; y < height; y++ {
		ty0, ty1, wy := interpWeight(float64(y), centersY)
		base := y * width
		for x := 0; x < width; x++ {
			tx0, tx1, wx := interpWeight(float64(x), centersX)
			top := means[ty0*tilesX+tx0]*(1-wx) + means[ty0*tilesX+tx1]*wx
			bottom := means[ty1*tilesX+tx0]*(1-wx) + means[ty1*tilesX+tx1]*wx
			out[base+x] = top*(1-wy) + bottom*wy
		}
	}
}

// interpWeight locates pos between two tile centers and returns their
// indices plus the blend weight toward the second one.
func interpWeight(pos float64, centers []float64) (int, int, float64) {
	if len(centers) == 1 || pos <= centers[0] {
		return 0, 0, 0
	}
	last := len(centers) - 1
	if pos >= centers[last] {
		return last, last, 0
	}
	for i := 0; i < last; i++ {
		if pos <= centers[i+1] {
			span := centers[i+1] - centers[i]
			return i, i + 1, (pos - centers[i]) / span
		}
	}
	return last, last, 0
}
