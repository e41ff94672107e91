// Package acquisition exposes the source microscopy data to the pipeline:
// a metadata record describing the acquisition geometry and a FrameReader
// returning one (FOV, channel, frame) plane at a time. The concrete reader
// here decodes stack-per-channel directories; proprietary microscope formats
// live behind the same interface in external decoders.
package acquisition

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cytopipe/internal/paths"
)

// Metadata describes the shape of an acquisition.
type Metadata struct {
	Name     string `yaml:"name"`
	Frames   int    `yaml:"frames"`
	FOVs     int    `yaml:"fovs"`
	Channels int    `yaml:"channels"`
	Height   int    `yaml:"height"`
	Width    int    `yaml:"width"`
	DType    string `yaml:"dtype"`
}

// Validate checks the metadata for internal consistency.
func (m *Metadata) Validate() error {
	if m.Frames <= 0 {
		return fmt.Errorf("acquisition has %d frames", m.Frames)
	}
	if m.FOVs <= 0 {
		return fmt.Errorf("acquisition has %d fields of view", m.FOVs)
	}
	if m.Channels <= 0 {
		return fmt.Errorf("acquisition has %d channels", m.Channels)
	}
	if m.Height <= 0 || m.Width <= 0 {
		return fmt.Errorf("acquisition has invalid plane size %dx%d", m.Width, m.Height)
	}
	if m.DType != "" && m.DType != "uint16" {
		return fmt.Errorf("unsupported dtype %q (only uint16 planes are supported)", m.DType)
	}
	return nil
}

// LoadMetadata reads and validates the acquisition.yaml sidecar in dir.
func LoadMetadata(dir string) (*Metadata, error) {
	raw, err := os.ReadFile(paths.AcquisitionMetadata(dir))
	if err != nil {
		return nil, fmt.Errorf("read acquisition metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse acquisition metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("acquisition metadata: %w", err)
	}
	return &meta, nil
}

// SaveMetadata writes the acquisition.yaml sidecar in dir.
func SaveMetadata(dir string, meta *Metadata) error {
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal acquisition metadata: %w", err)
	}
	if err := os.WriteFile(paths.AcquisitionMetadata(dir), raw, 0o644); err != nil {
		return fmt.Errorf("write acquisition metadata: %w", err)
	}
	return nil
}
