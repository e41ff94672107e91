package segmentation

import (
	"errors"
	"os"
	"testing"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/labels"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
	"cytopipe/internal/stage"
	"cytopipe/internal/testsupport"
)

func writeFrames(t *testing.T, cfg *config.Config, fov int) *stack.Uint16 {
	t.Helper()
	st := testsupport.NewCellStack(2, 48, 48, fov)
	if err := os.MkdirAll(paths.FOVDir(cfg.Paths.OutputDir, fov), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dst := paths.Frames(cfg.Paths.OutputDir, fov, cfg.Channels.PhaseContrast.Channel)
	if err := stack.WriteUint16(dst, st); err != nil {
		t.Fatalf("write frames: %v", err)
	}
	return st
}

func TestRunLabelsCells(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeFrames(t, cfg, 0)

	s, err := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	seg, err := stack.ReadUint16(paths.Segmentation(cfg.Paths.OutputDir, 0, 0))
	if err != nil {
		t.Fatalf("read segmentation: %v", err)
	}
	for fr := 0; fr < seg.Frames; fr++ {
		regions := labels.Regions(seg.Frame(fr), seg.Height, seg.Width)
		if len(regions) != 2 {
			t.Fatalf("frame %d has %d regions, want 2", fr, len(regions))
		}
		for _, r := range regions {
			if r.Area < cfg.Segmentation.MinCellArea {
				t.Fatalf("frame %d region %d area %d below minimum", fr, r.ID, r.Area)
			}
		}
	}

	// Interior of the first drawn cell must carry a nonzero label, the
	// far corner must stay background.
	frame := seg.Frame(0)
	if frame[8*seg.Width+8] == 0 {
		t.Fatal("cell interior not labeled")
	}
	if frame[2*seg.Width+40] != 0 {
		t.Fatal("background labeled as cell")
	}

	done, err := s.Done(0)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !done {
		t.Fatal("stage not done after run")
	}
}

func TestRunWithoutPhaseContrastIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutPhaseContrast())

	s, err := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	done, err := s.Done(0)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !done {
		t.Fatal("stage without PC channel must report done")
	}
	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunMissingFramesFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	s, err := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	err = s.Run(cancel.New(), 0)
	if err == nil {
		t.Fatal("expected missing-input error")
	}
	if !errors.Is(err, stage.ErrMissingInput) {
		t.Fatalf("error %v is not a missing-input error", err)
	}
}

func TestRunCancelledWritesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeFrames(t, cfg, 0)

	s, err := New(cfg, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop())
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	tok := cancel.New()
	tok.Cancel()
	if err := s.Run(tok, 0); err != nil {
		t.Fatalf("cancelled run returned error: %v", err)
	}
	if paths.Exists(paths.Segmentation(cfg.Paths.OutputDir, 0, 0)) {
		t.Fatal("cancelled run wrote segmentation")
	}
}

func TestNewMethodUnknownName(t *testing.T) {
	segCfg := config.Segmentation{Method: "watershed", Window: 5}
	if _, err := NewMethod(segCfg); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestOtsuSeparatesBimodalFrame(t *testing.T) {
	const h, w = 16, 16
	frame := make([]uint16, h*w)
	for i := range frame {
		frame[i] = 100
	}
	testsupport.DrawSquare(frame, w, h, 4, 4, 6, 4000)

	mask := make([]bool, h*w)
	otsu{}.Threshold(frame, h, w, mask)

	if !mask[5*w+5] {
		t.Fatal("bright pixel not above otsu threshold")
	}
	if mask[0] {
		t.Fatal("background pixel above otsu threshold")
	}
}
