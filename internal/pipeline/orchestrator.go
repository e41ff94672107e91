package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/paths"
	"cytopipe/internal/progress"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/background"
	"cytopipe/internal/stages/cropping"
	"cytopipe/internal/stages/extraction"
	"cytopipe/internal/stages/framecopy"
	"cytopipe/internal/stages/segmentation"
	"cytopipe/internal/stages/tracking"
)

// State names the orchestrator's position in its run lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateCopying    State = "copying"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Summary aggregates per-FOV outcomes for one run. Success means
// Completed equals Total.
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Cancelled int
	Results   []FOVResult
}

// Success reports whether every targeted FOV completed.
func (s *Summary) Success() bool {
	return s.Total > 0 && s.Completed == s.Total
}

// Orchestrator drives batches through serial frame copy and parallel
// per-FOV processing, and records the run configuration for provenance.
type Orchestrator struct {
	cfg    *config.Config
	reader acquisition.FrameReader
	root   string
	logger *slog.Logger
	copy   stage.Stage
	runner *Runner

	mu    sync.Mutex
	state State
}

// NewOrchestrator resolves the configured algorithms and wires the stage
// sequence. Construction fails on an unknown segmentation or tracking
// method name.
func NewOrchestrator(cfg *config.Config, reader acquisition.FrameReader, logger *slog.Logger, sink progress.Sink) (*Orchestrator, error) {
	root := cfg.Paths.OutputDir
	seg, err := segmentation.New(cfg, root, logger, sink)
	if err != nil {
		return nil, err
	}
	trk, err := tracking.New(cfg, root, logger, sink)
	if err != nil {
		return nil, err
	}
	stages := []stage.Stage{
		seg,
		trk,
		background.New(cfg, root, logger, sink),
		cropping.New(cfg, root, logger, sink),
		extraction.New(cfg, root, logger, sink),
	}
	return &Orchestrator{
		cfg:    cfg,
		reader: reader,
		root:   root,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		copy:   framecopy.New(cfg, reader, root, logger, sink),
		runner: NewRunner(stages, logger),
	}, nil
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run processes every targeted FOV batch by batch. Per-FOV failures are
// collected in the summary; the returned error is reserved for
// infrastructure failures that abort the run outright.
func (o *Orchestrator) Run(tok *cancel.Token) (*Summary, error) {
	fovs, err := o.cfg.FOVList(o.reader.Metadata().FOVs)
	if err != nil {
		o.setState(StateFailed)
		return nil, err
	}
	if err := os.MkdirAll(o.root, 0o755); err != nil {
		o.setState(StateFailed)
		return nil, fmt.Errorf("create output root: %w", err)
	}

	summary := &Summary{Total: len(fovs)}
	results := make(map[int]FOVResult, len(fovs))

	batches := Batches(fovs, o.cfg.Processing.BatchSize)
	for _, batch := range batches {
		o.setState(StateCopying)
		o.copyBatch(tok, batch, results)
		if tok.Cancelled() {
			break
		}

		o.setState(StateProcessing)
		o.processBatch(tok, pending(batch, results), results)
		if tok.Cancelled() {
			break
		}
	}

	for _, fov := range fovs {
		res, ok := results[fov]
		if !ok {
			res = FOVResult{FOV: fov, Cancelled: true}
		}
		summary.Results = append(summary.Results, res)
		switch {
		case res.Err != nil:
			summary.Failed++
		case res.Cancelled:
			summary.Cancelled++
		default:
			summary.Completed++
		}
	}
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].FOV < summary.Results[j].FOV
	})

	if err := o.cfg.SaveIfAbsent(paths.RunConfig(o.root)); err != nil {
		o.setState(StateFailed)
		return summary, fmt.Errorf("persist run configuration: %w", err)
	}

	switch {
	case tok.Cancelled():
		o.setState(StateCancelled)
	case summary.Success():
		o.setState(StateCompleted)
	default:
		o.setState(StateFailed)
	}
	o.logger.Info("run finished",
		logging.String("state", string(o.State())),
		logging.Int("total", summary.Total),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("cancelled", summary.Cancelled),
	)
	return summary, nil
}

// copyBatch runs frame copy serially over the batch. Copying is
// I/O-bound and deliberately serialized to bound peak memory. A copy
// failure records a failed result so processing skips that FOV.
func (o *Orchestrator) copyBatch(tok *cancel.Token, batch []int, results map[int]FOVResult) {
	for _, fov := range batch {
		if tok.Cancelled() {
			return
		}
		done, err := o.copy.Done(fov)
		if err == nil && done {
			o.logger.Debug("frames already copied",
				logging.Int(logging.FieldFOV, fov))
			continue
		}
		if err == nil {
			err = runStage(o.copy, tok, fov)
		}
		if err != nil {
			o.logger.Error("frame copy failed",
				logging.Int(logging.FieldFOV, fov),
				logging.Error(err),
			)
			results[fov] = FOVResult{FOV: fov, Err: fmt.Errorf("frame copy: %w", err)}
		}
	}
}

// pending filters a batch down to the FOVs without a recorded result.
func pending(batch []int, results map[int]FOVResult) []int {
	out := make([]int, 0, len(batch))
	for _, fov := range batch {
		if _, ok := results[fov]; !ok {
			out = append(out, fov)
		}
	}
	return out
}

// processBatch fans the batch's worker ranges out to a bounded pool.
// Workers re-check the token before starting a range, so ranges not yet
// started when cancellation lands are skipped rather than executed.
// Results are drained single-threaded here.
func (o *Orchestrator) processBatch(tok *cancel.Token, batch []int, results map[int]FOVResult) {
	ranges := WorkerRanges(batch, o.cfg.Processing.Workers)
	if len(ranges) == 0 {
		return
	}

	rangeCh := make(chan []int, len(ranges))
	for _, rng := range ranges {
		rangeCh <- rng
	}
	close(rangeCh)

	resultCh := make(chan FOVResult, len(batch))
	var wg sync.WaitGroup
	for i := 0; i < len(ranges); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rng := range rangeCh {
				if tok.Cancelled() {
					for _, fov := range rng {
						resultCh <- FOVResult{FOV: fov, Cancelled: true}
					}
					continue
				}
				for _, fov := range rng {
					resultCh <- o.runner.Process(tok, fov)
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		results[res.FOV] = res
	}
}
