package background

import (
	"errors"
	"math"
	"os"
	"testing"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
	"cytopipe/internal/stage"
	"cytopipe/internal/testsupport"
)

const (
	testH = 64
	testW = 64
)

// writeInputs creates a one-frame segmentation (one labeled square) and a
// matching FL stack where the cell is far brighter than the flat
// background, so a correct estimate must exclude it.
func writeInputs(t *testing.T, cfg *config.Config) {
	t.Helper()
	root := cfg.Paths.OutputDir
	if err := os.MkdirAll(paths.FOVDir(root, 0), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	seg := stack.NewUint16(1, testH, testW)
	fl := stack.NewUint16(1, testH, testW)
	for i := range fl.Data {
		fl.Data[i] = 200
	}
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			seg.Data[y*testW+x] = 1
			fl.Data[y*testW+x] = 5000
		}
	}
	if err := stack.WriteUint16(paths.Segmentation(root, 0, 0), seg); err != nil {
		t.Fatalf("write segmentation: %v", err)
	}
	if err := stack.WriteUint16(paths.Frames(root, 0, 1), fl); err != nil {
		t.Fatalf("write fl frames: %v", err)
	}
}

func TestRunExcludesForeground(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)

	s := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	bg, err := stack.ReadFloat64(paths.Background(cfg.Paths.OutputDir, 0, 1))
	if err != nil {
		t.Fatalf("read background: %v", err)
	}
	if bg.Frames != 1 || bg.Height != testH || bg.Width != testW {
		t.Fatalf("background shape (%d, %d, %d)", bg.Frames, bg.Height, bg.Width)
	}
	for i, v := range bg.Data {
		if math.Abs(v-200) > 1 {
			t.Fatalf("background pixel %d = %f, want ~200 (cell brightness leaked in)", i, v)
		}
	}

	done, err := s.Done(0)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !done {
		t.Fatal("stage not done after run")
	}
}

func TestRunSkipsExistingChannel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)
	root := cfg.Paths.OutputDir

	sentinel := stack.NewFloat64(1, 2, 2)
	sentinel.Data[0] = 123.5
	if err := stack.WriteFloat64(paths.Background(root, 0, 1), sentinel); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	s := New(cfg, root, logging.NewNop(), progress.Nop())
	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := stack.ReadFloat64(paths.Background(root, 0, 1))
	if err != nil {
		t.Fatalf("read background: %v", err)
	}
	if got.Frames != 1 || got.Height != 2 || got.Data[0] != 123.5 {
		t.Fatal("existing channel output was overwritten")
	}
}

func TestRunWithoutFluorescenceIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFluorescence())

	s := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	done, err := s.Done(0)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !done {
		t.Fatal("stage without FL channels must report done")
	}
	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunMissingSegmentation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	err := s.Run(cancel.New(), 0)
	if !errors.Is(err, stage.ErrMissingInput) {
		t.Fatalf("error %v is not a missing-input error", err)
	}
}

func TestRunCancelledWritesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)

	s := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	tok := cancel.New()
	tok.Cancel()
	if err := s.Run(tok, 0); err != nil {
		t.Fatalf("cancelled run returned error: %v", err)
	}
	if paths.Exists(paths.Background(cfg.Paths.OutputDir, 0, 1)) {
		t.Fatal("cancelled run wrote background")
	}
}

func TestInterpWeightBounds(t *testing.T) {
	centers := []float64{5, 15, 25}
	lo, hi, w := interpWeight(0, centers)
	if lo != 0 || hi != 0 || w != 0 {
		t.Fatalf("below first center: got (%d, %d, %f)", lo, hi, w)
	}
	lo, hi, w = interpWeight(30, centers)
	if lo != 2 || hi != 2 || w != 0 {
		t.Fatalf("past last center: got (%d, %d, %f)", lo, hi, w)
	}
	lo, hi, w = interpWeight(10, centers)
	if lo != 0 || hi != 1 || w != 0.5 {
		t.Fatalf("midpoint: got (%d, %d, %f)", lo, hi, w)
	}
}
