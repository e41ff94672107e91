package extraction

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/cropping"
)

// identityColumns prefix every row regardless of configured features, so
// a PC channel with no features still yields position and box geometry.
var identityColumns = []string{"fov", "cell", "frame", "x", "y", "width", "height", "area"}

// column binds one configured (channel, feature) pair to its header name.
type column struct {
	header  string
	channel int
	fullBox bool
	fn      Func
}

// Stage computes the per-FOV feature table from the crop container.
type Stage struct {
	cfg    *config.Config
	root   string
	logger *slog.Logger
	sink   progress.Sink
}

// New builds the extraction stage.
func New(cfg *config.Config, root string, logger *slog.Logger, sink progress.Sink) *Stage {
	return &Stage{
		cfg:    cfg,
		root:   root,
		logger: logging.NewComponentLogger(logger, "extraction"),
		sink:   sink,
	}
}

// Name implements stage.Stage.
func (s *Stage) Name() string { return "extraction" }

// Done implements stage.Stage.
func (s *Stage) Done(fov int) (bool, error) {
	if s.cfg.Channels.PhaseContrast == nil {
		return true, nil
	}
	return paths.Exists(paths.Features(s.root, fov)), nil
}

// Run implements stage.Stage.
func (s *Stage) Run(tok *cancel.Token, fov int) error {
	if s.cfg.Channels.PhaseContrast == nil {
		s.logger.Info("extraction needs a PC channel, skipping",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}
	dst := paths.Features(s.root, fov)
	if paths.Exists(dst) {
		s.logger.Debug("feature table exists, skipping",
			logging.Int(logging.FieldFOV, fov))
		return nil
	}

	cropsPath := paths.Crops(s.root, fov)
	if !paths.Exists(cropsPath) {
		return stage.MissingInput(s.Name(), cropsPath)
	}
	container, err := cropping.LoadContainer(cropsPath)
	if err != nil {
		return fmt.Errorf("load crop container: %w", err)
	}

	columns, err := s.buildColumns()
	if err != nil {
		return err
	}
	weight := clampWeight(s.cfg.Processing.BackgroundWeight)

	ids := make([]uint16, 0, len(container.Cells))
	for id := range container.Cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows [][]string
	for n, id := range ids {
		if tok.Cancelled() {
			s.logger.Info("extraction cancelled",
				logging.Int(logging.FieldFOV, fov))
			return nil
		}
		rows = append(rows, cellRows(fov, container.Cells[id], columns, weight)...)
		s.sink.Report(n+1, len(ids), fmt.Sprintf("extraction fov %d", fov))
	}

	if err := writeTable(dst, columns, rows); err != nil {
		return fmt.Errorf("write feature table: %w", err)
	}
	return nil
}

// buildColumns expands the configured channel selections into the
// (feature, channel) column list, PC channel first.
func (s *Stage) buildColumns() ([]column, error) {
	var columns []column
	add := func(sel config.ChannelSelection) error {
		for _, name := range sel.Features {
			fn, err := Lookup(name)
			if err != nil {
				return err
			}
			columns = append(columns, column{
				header:  fmt.Sprintf("%s_c%02d", name, sel.Channel),
				channel: sel.Channel,
				fullBox: sel.UseFullBox,
				fn:      fn,
			})
		}
		return nil
	}
	if pc := s.cfg.Channels.PhaseContrast; pc != nil {
		if err := add(*pc); err != nil {
			return nil, err
		}
	}
	for _, sel := range s.cfg.Channels.Fluorescence {
		if err := add(sel); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

func cellRows(fov int, cell *cropping.CellCrop, columns []column, weight float64) [][]string {
	rows := make([][]string, 0, len(cell.FrameIndices))
	for i, t := range cell.FrameIndices {
		box := cell.Boxes[i]
		mask := cell.Masks[i]
		area := 0
		for _, v := range mask {
			if v {
				area++
			}
		}
		row := []string{
			strconv.Itoa(fov),
			strconv.Itoa(int(cell.ID)),
			strconv.Itoa(t),
			strconv.Itoa(box.MinX),
			strconv.Itoa(box.MinY),
			strconv.Itoa(box.Width()),
			strconv.Itoa(box.Height()),
			strconv.Itoa(area),
		}
		for _, col := range columns {
			in := Input{
				Crop:   cell.Channels[col.channel][i],
				Mask:   mask,
				Weight: weight,
				Height: box.Height(),
				Width:  box.Width(),
			}
			if col.fullBox {
				in.Mask = nil
			}
			if bg, ok := cell.Backgrounds[col.channel]; ok {
				in.Background = bg[i]
			}
			row = append(row, strconv.FormatFloat(col.fn(in), 'g', -1, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// writeTable writes header plus rows to a temporary file and renames it
// into place. An empty row set still produces a valid header-only table.
func writeTable(path string, columns []column, rows [][]string) error {
	partial := path + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	header := append([]string{}, identityColumns...)
	for _, col := range columns {
		header = append(header, col.header)
	}
	if err := w.Write(header); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return err
	}
	return os.Rename(partial, path)
}
