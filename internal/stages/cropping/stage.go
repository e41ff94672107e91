// Package cropping cuts every tracked cell out of the frame stacks and
// stores the crops, masks, and matching background crops in a single
// per-FOV container file.
package cropping

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

// Stage extracts per-cell crops from all selected channels. Cells
// present in fewer than min_frames frames are dropped. Each crop box is
// the tracked bounding box padded by crop_padding and clipped to the
// frame; the mask is grown or shrunk by mask_margin.
type Stage struct {
	cfg    *config.Config
	root   string
	logger *slog.Logger
	sink   progress.Sink
}

// New builds the cropping stage.
func New(cfg *config.Config, root string, logger *slog.Logger, sink progress.Sink) *Stage {
	return &Stage{
		cfg:    cfg,
		root:   root,
		logger: logging.NewComponentLogger(logger, "cropping"),
		sink:   sink,
	}
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "cropping" }

// Done implements stage.Stage.
func (s *Stage) Done(fov int) (bool, error) {
	if s.cfg.Channels.PhaseContrast == nil {
		return true, nil
	}
	return paths.Exists(paths.Crops(s.root, fov)), nil
}

// cellSpan accumulates the frames a track appears in and its box per frame.
type cellSpan struct {
	frames []int
	boxes  []labels.Rect
}

// Run implements stage.Stage.
func (s *Stage) Run(tok *cancel.Token, fov int) error {
	pc := s.cfg.Channels.PhaseContrast
	if pc == nil {
		s.logger.Info("cropping needs a PC channel, skipping",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}
	dst := paths.Crops(s.root, fov)
	if paths.Exists(dst) {
		s.logger.Debug("crop container exists, skipping",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}

	trackedPath := paths.Tracked(s.root, fov, pc.Channel)
	if !paths.Exists(trackedPath) {
		return stage.MissingInput(s.Name(), trackedPath)
	}
	tracked, err := stack.ReadUint16(trackedPath)
	if err != nil {
		return fmt.Errorf("load tracked stack: %w", err)
	}

	if tok.Cancelled() {
		s.logger.Info("cropping cancelled before box computation",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}

	spans := computeSpans(tracked)
	for id, span := range spans {
		if len(span.frames) < s.cfg.Processing.MinFrames {
			delete(spans, id)
		}
	}
	if len(spans) == 0 {
		s.logger.Info("no cells survive the min-frames filter",
			logging.Int(logging.FieldFOV, fov))
	}

	channels, err := s.loadChannels(fov)
	if err != nil {
		return err
	}
	backgrounds, err := s.loadBackgrounds(fov)
	if err != nil {
		return err
	}

	if tok.Cancelled() {
		s.logger.Info("cropping cancelled before crop extraction",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}

	container := &Container{FOV: fov, Cells: make(map[uint16]*CellCrop, len(spans))}
	done := 0
	for id, span := range spans {
		cell, err := s.extractCell(id, span, tracked, channels, backgrounds)
		if err != nil {
			return err
		}
		container.Cells[id] = cell
		done++
		s.sink.Report(done, len(spans), fmt.Sprintf("cropping fov %d", fov))
	}

	cancelled, err := saveContainer(dst, container, tok)
	if err != nil {
		return fmt.Errorf("save crop container: %w", err)
	}
	if cancelled {
		s.logger.Info("cropping cancelled during save, partial container removed",
			logging.Int(logging.FieldFOV, fov))
	}
	return nil
}

// computeSpans walks the tracked stack once and records, per track ID,
// the frames it appears in and its bounding box in each of them.
func computeSpans(tracked *stack.Uint16) map[uint16]*cellSpan {
	spans := make(map[uint16]*cellSpan)
	for t := 0; t < tracked.Frames; t++ {
		for _, region := range labels.Regions(tracked.Frame(t), tracked.Height, tracked.Width) {
			span, ok := spans[region.ID]
			if !ok {
				span = &cellSpan{}
				spans[region.ID] = span
			}
			span.frames = append(span.frames, t)
			span.boxes = append(span.boxes, region.Box)
		}
	}
	return spans
}

func (s *Stage) loadChannels(fov int) (map[int]*stack.Uint16, error) {
	channels := make(map[int]*stack.Uint16)
	for _, ch := range s.cfg.SelectedChannels() {
		path := paths.Frames(s.root, fov, ch)
		if !paths.Exists(path) {
			return nil, stage.MissingInput(s.Name(), path)
		}
		st, err := stack.ReadUint16(path)
		if err != nil {
			return nil, fmt.Errorf("load frames channel %d: %w", ch, err)
		}
		channels[ch] = st
	}
	return channels, nil
}

// loadBackgrounds picks up whatever background stacks exist. Absence is
// not an error here; the extraction stage decides whether a feature
// needs one.
func (s *Stage) loadBackgrounds(fov int) (map[int]*stack.Float64, error) {
	backgrounds := make(map[int]*stack.Float64)
	for _, sel := range s.cfg.Channels.Fluorescence {
		path := paths.Background(s.root, fov, sel.Channel)
		if !paths.Exists(path) {
			continue
		}
		st, err := stack.ReadFloat64(path)
		if err != nil {
			return nil, fmt.Errorf("load background channel %d: %w", sel.Channel, err)
		}
		backgrounds[sel.Channel] = st
	}
	return backgrounds, nil
}

func (s *Stage) extractCell(id uint16, span *cellSpan, tracked *stack.Uint16,
	channels map[int]*stack.Uint16, backgrounds map[int]*stack.Float64) (*CellCrop, error) {

	cell := &CellCrop{
		ID:          id,
		Channels:    make(map[int][][]uint16, len(channels)),
		Backgrounds: make(map[int][][]float64, len(backgrounds)),
	}
	for i, t := range span.frames {
		box := span.boxes[i].Pad(s.cfg.Processing.CropPadding, tracked.Height, tracked.Width)
		mask := cropMask(tracked.Frame(t), tracked.Width, box, id)
		mask = applyMargin(mask, box.Height(), box.Width(), s.cfg.Processing.MaskMargin)

		cell.FrameIndices = append(cell.FrameIndices, t)
		cell.Boxes = append(cell.Boxes, box)
		cell.Masks = append(cell.Masks, mask)
		for ch, st := range channels {
			cell.Channels[ch] = append(cell.Channels[ch], cropUint16(st.Frame(t), st.Width, box))
		}
		for ch, st := range backgrounds {
			cell.Backgrounds[ch] = append(cell.Backgrounds[ch], cropFloat64(st.Frame(t), st.Width, box))
		}
	}
	return cell, nil
}

// applyMargin dilates (positive margin) or erodes (negative margin) the
// mask. An erosion step that would empty the mask is discarded so a thin
// cell never loses every pixel.
func applyMargin(mask []bool, height, width, margin int) []bool {
	switch {
	case margin > 0:
		mask = labels.Dilated(mask, height, width, margin)
	case margin < 0:
		for i := 0; i < -margin; i++ {
			eroded := labels.Eroded(mask, height, width, 1)
			if !anySet(eroded) {
				return mask
			}
			mask = eroded
		}
	}
	return mask
}

func anySet(mask []bool) bool {
	for _, v := range mask {
		if v {
			return true
		}
	}
	return false
}

func cropMask(frame []uint16, stride int, box labels.Rect, id uint16) []bool {
	out := make([]bool, box.Height()*box.Width())
	i := 0
	for y := box.MinY; y < box.MaxY; y++ {
		base := y * stride
		for x := box.MinX; x < box.MaxX; x++ {
			out[i] = frame[base+x] == id
			i++
		}
	}
	return out
}

func cropUint16(frame []uint16, stride int, box labels.Rect) []uint16 {
	out := make([]uint16, box.Height()*box.Width())
	i := 0
	for y := box.MinY; y < box.MaxY; y++ {
		base := y * stride
		for x := box.MinX; x < box.MaxX; x++ {
			out[i] = frame[base+x]
			i++
		}
	}
	return out
}

func cropFloat64(frame []float64, stride int, box labels.Rect) []float64 {
	out := make([]float64, box.Height()*box.Width())
	i := 0
	for y := box.MinY; y < box.MaxY; y++ {
		base := y * stride
		for x := box.MinX; x < box.MaxX; x++ {
			out[i] = frame[base+x]
			i++
		}
	}
	return out
}
