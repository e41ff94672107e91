package pipeline

import (
	"log/slog"

	"github.com/pkg/errors"

	"cytopipe/internal/cancel"
	"cytopipe/internal/logging"
	"cytopipe/internal/stage"
)

// FOVResult reports the outcome of running the stage sequence for one FOV.
type FOVResult struct {
	FOV        int
	StagesDone int
	Err        error
	Cancelled  bool
}

// Runner executes the ordered stage sequence for a single FOV, checking
// the cancellation token before each stage and skipping stages whose
// output already exists. A stage failure aborts the remaining stages for
// that FOV only.
type Runner struct {
	stages []stage.Stage
	logger *slog.Logger
}

// NewRunner builds a runner over the given ordered stages.
func NewRunner(stages []stage.Stage, logger *slog.Logger) *Runner {
	return &Runner{stages: stages, logger: logging.NewComponentLogger(logger, "runner")}
}

// Process runs every stage for fov in order.
func (r *Runner) Process(tok *cancel.Token, fov int) FOVResult {
	result := FOVResult{FOV: fov}
	logger := logging.WithFOV(r.logger, fov)
	for _, s := range r.stages {
		if tok.Cancelled() {
			result.Cancelled = true
			logger.Info("run cancelled",
				logging.Int("stages_done", result.StagesDone))
			return result
		}

		stageLog := logging.WithStage(logger, s.Name())
		done, err := s.Done(fov)
		if err != nil {
			result.Err = errors.Wrapf(err, "stage %s done check for fov %d", s.Name(), fov)
			return result
		}
		if done {
			stageLog.Debug("stage output exists, skipping")
			result.StagesDone++
			continue
		}

		if err := runStage(s, tok, fov); err != nil {
			result.Err = errors.Wrapf(err, "stage %s for fov %d", s.Name(), fov)
			stageLog.Error("stage failed", logging.Error(result.Err))
			return result
		}
		// A cancellation observed mid-stage surfaces as a clean return;
		// the token check at the top of the next iteration reports it.
		if !tok.Cancelled() {
			result.StagesDone++
		}
	}
	if tok.Cancelled() {
		result.Cancelled = true
	}
	return result
}

// runStage isolates stage panics so a crashing algorithm fails one FOV
// instead of the whole process.
func runStage(s stage.Stage, tok *cancel.Token, fov int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("stage %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Run(tok, fov)
}
