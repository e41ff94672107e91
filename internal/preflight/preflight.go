package preflight

import (
	"cytopipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckAcquisition(cfg.Paths.AcquisitionDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeDiskSpace(cfg.Paths.OutputDir, cfg.Processing.MinFreeDiskGiB),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	return results
}

// AllPassed reports whether every check in results passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
