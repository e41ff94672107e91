package framecopy

import (
	"os"
	"testing"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/cancel"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
	"cytopipe/internal/testsupport"
)

func newStage(t *testing.T) (*Stage, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	testsupport.WriteAcquisition(t, cfg, 2, 2, 3, 32, 32)
	reader, err := acquisition.Open(cfg.Paths.AcquisitionDir)
	if err != nil {
		t.Fatalf("open acquisition: %v", err)
	}
	t.Cleanup(func() { _ = reader.Close() })
	return New(cfg, reader, cfg.Paths.OutputDir, logging.NewNop(), progress.Nop()), cfg.Paths.OutputDir
}

func TestRunCopiesSelectedChannels(t *testing.T) {
	s, root := newStage(t)

	done, err := s.Done(0)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if done {
		t.Fatal("stage reported done before running")
	}

	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, ch := range []int{0, 1} {
		st, err := stack.ReadUint16(paths.Frames(root, 0, ch))
		if err != nil {
			t.Fatalf("read copied channel %d: %v", ch, err)
		}
		if st.Frames != 3 || st.Height != 32 || st.Width != 32 {
			t.Fatalf("channel %d has shape (%d, %d, %d)", ch, st.Frames, st.Height, st.Width)
		}
		want := testsupport.NewCellStack(3, 32, 32, 0)
		for i, v := range st.Data {
			if v != want.Data[i] {
				t.Fatalf("channel %d pixel %d = %d, want %d", ch, i, v, want.Data[i])
			}
		}
	}

	done, err = s.Done(0)
	if err != nil {
		t.Fatalf("done after run: %v", err)
	}
	if !done {
		t.Fatal("stage not done after run")
	}
}

func TestRunCancelledLeavesNoArtifacts(t *testing.T) {
	s, root := newStage(t)

	tok := cancel.New()
	tok.Cancel()
	if err := s.Run(tok, 0); err != nil {
		t.Fatalf("cancelled run returned error: %v", err)
	}

	for _, ch := range []int{0, 1} {
		path := paths.Frames(root, 0, ch)
		if paths.Exists(path) {
			t.Fatalf("cancelled run wrote %s", path)
		}
		if paths.Exists(path + ".partial") {
			t.Fatalf("cancelled run left partial file for channel %d", ch)
		}
	}
}

func TestRunSkipsExistingChannel(t *testing.T) {
	s, root := newStage(t)

	sentinel := stack.NewUint16(1, 2, 2)
	sentinel.Data[0] = 7777
	if err := os.MkdirAll(paths.FOVDir(root, 0), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := stack.WriteUint16(paths.Frames(root, 0, 0), sentinel); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	if err := s.Run(cancel.New(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := stack.ReadUint16(paths.Frames(root, 0, 0))
	if err != nil {
		t.Fatalf("read channel 0: %v", err)
	}
	if got.Frames != 1 || got.Data[0] != 7777 {
		t.Fatal("existing channel output was overwritten")
	}
	if !paths.Exists(paths.Frames(root, 0, 1)) {
		t.Fatal("missing channel was not copied")
	}
}
