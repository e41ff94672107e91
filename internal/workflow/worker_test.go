package workflow

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/pipeline"
	"cytopipe/internal/progress"
	"cytopipe/internal/runlog"
	"cytopipe/internal/testsupport"
)

func TestWorkerRunCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteAcquisition(t, cfg, 2, 2, 3, 48, 48)

	w := NewWorker(cfg, logging.NewNop(), nil)
	if w.RunID() == "" {
		t.Fatal("worker has no run ID")
	}
	if w.State() != pipeline.StateIdle {
		t.Fatalf("initial state = %s", w.State())
	}

	ok, msg := w.Run()
	if !ok {
		t.Fatalf("run failed: %s", msg)
	}
	if w.State() != pipeline.StateCompleted {
		t.Fatalf("state = %s", w.State())
	}
	for fov := 0; fov < 2; fov++ {
		if !paths.Exists(paths.Features(cfg.Paths.OutputDir, fov)) {
			t.Fatalf("fov %d has no feature table", fov)
		}
	}

	store, err := runlog.Open(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("open run log: %v", err)
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != w.RunID() {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].State != string(pipeline.StateCompleted) || runs[0].Completed != 2 {
		t.Fatalf("run record = %+v", runs[0])
	}
	records, err := store.FOVResults(context.Background(), w.RunID())
	if err != nil {
		t.Fatalf("fov results: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d fov records", len(records))
	}
}

func TestWorkerCancelBeforeRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteAcquisition(t, cfg, 2, 2, 3, 48, 48)

	w := NewWorker(cfg, logging.NewNop(), nil)
	w.Cancel()
	w.Cancel() // idempotent

	ok, msg := w.Run()
	if ok {
		t.Fatalf("cancelled run reported success: %s", msg)
	}
	if !strings.Contains(msg, "cancelled") {
		t.Fatalf("message %q does not mention cancellation", msg)
	}
	if w.State() != pipeline.StateIdle {
		t.Fatalf("pre-cancelled worker reached state %s", w.State())
	}
	// Nothing at all may be written: no lock, no run log, no run
	// config, not even the output directory itself.
	if _, err := os.Stat(cfg.Paths.OutputDir); !os.IsNotExist(err) {
		t.Fatalf("pre-cancelled run touched the output root (stat err = %v)", err)
	}
	for _, path := range []string{
		paths.LockFile(cfg.Paths.OutputDir),
		paths.RunConfig(cfg.Paths.OutputDir),
		paths.RunLog(cfg.Paths.OutputDir),
		paths.Frames(cfg.Paths.OutputDir, 0, 0),
	} {
		if paths.Exists(path) {
			t.Fatalf("pre-cancelled run created %s", path)
		}
	}
}

func TestWorkerCancelMidRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(4), testsupport.WithWorkers(2))
	testsupport.WriteAcquisition(t, cfg, 6, 2, 3, 48, 48)

	// Cancel from a progress callback once batch 1's frame copy is done,
	// so cancellation lands while FOVs are being processed.
	var w *Worker
	var n atomic.Int64
	w = NewWorker(cfg, logging.NewNop(), progress.Func(func(int, int, string) {
		if n.Add(1) == 30 {
			w.Cancel()
		}
	}))

	ok, msg := w.Run()
	if ok {
		t.Fatalf("cancelled run reported success: %s", msg)
	}
	if !strings.Contains(msg, "cancelled") {
		t.Fatalf("message %q does not mention cancellation", msg)
	}
	if w.State() != pipeline.StateCancelled {
		t.Fatalf("state = %s, want cancelled", w.State())
	}

	store, err := runlog.Open(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("open run log: %v", err)
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].State != string(pipeline.StateCancelled) {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Completed >= runs[0].Total || runs[0].Cancelled == 0 {
		t.Fatalf("run record = %+v", runs[0])
	}
}

func TestWorkerRefusesWhenPreflightFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// No acquisition written: metadata check must fail.
	w := NewWorker(cfg, logging.NewNop(), nil)
	ok, msg := w.Run()
	if ok {
		t.Fatal("run succeeded without an acquisition")
	}
	if !strings.Contains(msg, "preflight") {
		t.Fatalf("message %q does not mention preflight", msg)
	}
}

func TestWorkerRefusesConcurrentRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteAcquisition(t, cfg, 1, 2, 2, 32, 32)
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	held := flock.New(paths.LockFile(cfg.Paths.OutputDir))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("prelock: locked=%v err=%v", locked, err)
	}
	defer held.Unlock()

	w := NewWorker(cfg, logging.NewNop(), nil)
	ok, msg := w.Run()
	if ok {
		t.Fatal("run succeeded while the output lock was held")
	}
	if !strings.Contains(msg, "another run") {
		t.Fatalf("message = %q", msg)
	}
}

func TestWorkersHaveDistinctRunIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a := NewWorker(cfg, logging.NewNop(), nil)
	b := NewWorker(cfg, logging.NewNop(), nil)
	if a.RunID() == b.RunID() {
		t.Fatal("two workers share a run ID")
	}
}
