// Package testsupport provides shared helpers for building test
// configurations and synthetic acquisitions.
package testsupport

import (
	"path/filepath"
	"testing"

	"cytopipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per
// test: a PC channel 0 with an area feature and an FL channel 1 with
// intensity features. Segmentation parameters suit the small synthetic
// frames written by WriteAcquisition.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.AcquisitionDir = filepath.Join(base, "acquisition")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Channels.PhaseContrast = &config.ChannelSelection{Channel: 0, Features: []string{"area"}}
	cfg.Channels.Fluorescence = []config.ChannelSelection{
		{Channel: 1, Features: []string{"mean", "total"}},
	}
	cfg.Segmentation.Window = 5
	cfg.Segmentation.MinCellArea = 4
	cfg.Segmentation.MaxCellArea = 10000
	cfg.Processing.MinFrames = 1

	builder := &configBuilder{t: t, cfg: &cfg}
	for _, opt := range opts {
		opt(builder)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithFOVs overrides the FOV selection string.
func WithFOVs(selection string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.FOVs = selection
	}
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.Workers = n
	}
}

// WithBatchSize overrides the batch size.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.BatchSize = n
	}
}

// WithTrackingMethod selects the tracking algorithm.
func WithTrackingMethod(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tracking.Method = name
	}
}

// WithoutPhaseContrast drops the PC channel selection.
func WithoutPhaseContrast() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels.PhaseContrast = nil
	}
}

// WithFluorescence replaces the fluorescence channel selections.
func WithFluorescence(sels ...config.ChannelSelection) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels.Fluorescence = sels
	}
}

// Customize applies an arbitrary mutation to the config before validation.
func Customize(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}
