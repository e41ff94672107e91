package logging

import "log/slog"

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldFOV is the standardized structured logging key for field-of-view indices.
	FieldFOV = "fov"
	// FieldChannel is the standardized structured logging key for channel indices.
	FieldChannel = "channel"
	// FieldRunID is the standardized structured logging key for run identifiers.
	FieldRunID = "run_id"
)

// WithStage returns a logger annotated with the stage name.
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldStage, stage))
}

// WithFOV returns a logger annotated with the FOV index.
func WithFOV(logger *slog.Logger, fov int) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(Int(FieldFOV, fov))
}
