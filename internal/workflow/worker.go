// Package workflow exposes the externally facing control surface of the
// pipeline: a Worker that owns the run lifecycle (single-instance lock,
// preflight, provenance recording) and the shared cancellation token
// threaded through the whole stage tree.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/pipeline"
	"cytopipe/internal/preflight"
	"cytopipe/internal/progress"
	"cytopipe/internal/runlog"
)

// Worker runs one pipeline invocation. It never panics outward: Run
// reports success plus a human-readable message, and Cancel may be
// called at any time, including before Run starts.
type Worker struct {
	cfg    *config.Config
	logger *slog.Logger
	sink   progress.Sink
	tok    *cancel.Token
	runID  string

	mu   sync.Mutex
	orch *pipeline.Orchestrator
}

// NewWorker builds a worker with a fresh run ID and cancellation token.
func NewWorker(cfg *config.Config, logger *slog.Logger, sink progress.Sink) *Worker {
	if sink == nil {
		sink = progress.Nop()
	}
	return &Worker{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "worker"),
		sink:   sink,
		tok:    cancel.New(),
		runID:  uuid.NewString(),
	}
}

// RunID identifies this invocation in logs and the run log.
func (w *Worker) RunID() string { return w.runID }

// Cancel requests cooperative shutdown. It is idempotent and effective
// even before Run starts.
func (w *Worker) Cancel() {
	w.tok.Cancel()
}

// State reports the orchestrator lifecycle state, or idle before Run.
func (w *Worker) State() pipeline.State {
	w.mu.Lock()
	orch := w.orch
	w.mu.Unlock()
	if orch == nil {
		return pipeline.StateIdle
	}
	return orch.State()
}

// Run executes the pipeline end to end and reports (success, message).
// Failures of any kind, including panics escaping the stage tree, come
// back as a false result rather than an error or a crash.
func (w *Worker) Run() (ok bool, msg string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			msg = fmt.Sprintf("run crashed: %v", r)
			w.logger.Error("run crashed", logging.Any("panic", r))
		}
	}()

	// A cancel issued before Run starts is observed here, before any
	// filesystem side effect.
	if w.tok.Cancelled() {
		w.logger.Info("run cancelled before start",
			logging.String(logging.FieldRunID, w.runID))
		return false, "cancelled before start"
	}

	if err := w.cfg.EnsureDirectories(); err != nil {
		return false, fmt.Sprintf("prepare directories: %v", err)
	}

	checks := preflight.RunAll(w.cfg)
	for _, c := range checks {
		if !c.Passed {
			return false, fmt.Sprintf("preflight %s: %s", c.Name, c.Detail)
		}
	}

	lock := flock.New(paths.LockFile(w.cfg.Paths.OutputDir))
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Sprintf("acquire run lock: %v", err)
	}
	if !locked {
		return false, "another run is active on this output directory"
	}
	defer func() { _ = lock.Unlock() }()

	reader, err := acquisition.Open(w.cfg.Paths.AcquisitionDir)
	if err != nil {
		return false, fmt.Sprintf("open acquisition: %v", err)
	}
	defer func() { _ = reader.Close() }()

	store, err := runlog.Open(w.cfg.Paths.OutputDir)
	if err != nil {
		return false, fmt.Sprintf("open run log: %v", err)
	}
	defer func() { _ = store.Close() }()

	orch, err := pipeline.NewOrchestrator(w.cfg, reader, w.logger, w.sink)
	if err != nil {
		return false, fmt.Sprintf("configure pipeline: %v", err)
	}
	w.mu.Lock()
	w.orch = orch
	w.mu.Unlock()

	fovs, err := w.cfg.FOVList(reader.Metadata().FOVs)
	if err != nil {
		return false, fmt.Sprintf("resolve fov selection: %v", err)
	}

	ctx := context.Background()
	if err := store.BeginRun(ctx, w.runID, len(fovs)); err != nil {
		return false, fmt.Sprintf("record run start: %v", err)
	}
	w.logger.Info("run started",
		logging.String(logging.FieldRunID, w.runID),
		logging.Int("fovs", len(fovs)),
	)

	summary, err := orch.Run(w.tok)
	if err != nil {
		_ = store.FinishRun(ctx, w.runID, string(pipeline.StateFailed), 0, 0, 0)
		return false, fmt.Sprintf("run aborted: %v", err)
	}

	for _, res := range summary.Results {
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		if err := store.RecordFOV(ctx, w.runID, res.FOV, res.StagesDone, errMsg, res.Cancelled); err != nil {
			w.logger.Warn("record fov outcome failed",
				logging.Int(logging.FieldFOV, res.FOV),
				logging.Error(err),
			)
		}
	}
	state := orch.State()
	if err := store.FinishRun(ctx, w.runID, string(state),
		summary.Completed, summary.Failed, summary.Cancelled); err != nil {
		w.logger.Warn("record run finish failed", logging.Error(err))
	}

	msg = fmt.Sprintf("%s: %d/%d fovs completed, %d failed, %d cancelled",
		state, summary.Completed, summary.Total, summary.Failed, summary.Cancelled)
	return summary.Success(), msg
}
