package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrConfiguration marks failures that must stop a run before any work
// starts.
var ErrConfiguration = errors.New("configuration error")

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.AcquisitionDir, err = expandPath(strings.TrimSpace(c.Paths.AcquisitionDir)); err != nil {
		return err
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return err
	}
	c.Processing.FOVs = strings.TrimSpace(c.Processing.FOVs)
	if c.Processing.FOVs == "" {
		c.Processing.FOVs = "all"
	}
	c.Segmentation.Method = strings.ToLower(strings.TrimSpace(c.Segmentation.Method))
	c.Tracking.Method = strings.ToLower(strings.TrimSpace(c.Tracking.Method))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate enforces the fail-fast configuration invariants.
func (c *Config) Validate() error {
	if c.Processing.BatchSize < 1 {
		return configErrorf("batch_size must be at least 1, got %d", c.Processing.BatchSize)
	}
	if c.Processing.Workers < 1 {
		return configErrorf("workers must be at least 1, got %d", c.Processing.Workers)
	}
	if c.Processing.MinFrames < 1 {
		return configErrorf("min_frames must be at least 1, got %d", c.Processing.MinFrames)
	}
	if c.Processing.CropPadding < 0 {
		return configErrorf("crop_padding must not be negative, got %d", c.Processing.CropPadding)
	}
	if w := c.Processing.BackgroundWeight; w < 0 || w > 1 {
		return configErrorf("background_weight must be in [0, 1], got %v", w)
	}
	if _, err := parseFOVSelection(c.Processing.FOVs); err != nil {
		return err
	}
	if c.Channels.PhaseContrast != nil && c.Channels.PhaseContrast.Channel < 0 {
		return configErrorf("phase_contrast channel must not be negative, got %d", c.Channels.PhaseContrast.Channel)
	}
	seen := map[int]struct{}{}
	for _, sel := range c.Channels.Fluorescence {
		if sel.Channel < 0 {
			return configErrorf("fluorescence channel must not be negative, got %d", sel.Channel)
		}
		if _, dup := seen[sel.Channel]; dup {
			return configErrorf("fluorescence channel %d selected twice", sel.Channel)
		}
		seen[sel.Channel] = struct{}{}
	}
	if min, max := c.Segmentation.MinCellArea, c.Segmentation.MaxCellArea; max > 0 && min > max {
		return configErrorf("segmentation min_cell_area %d exceeds max_cell_area %d", min, max)
	}
	if c.Segmentation.Window > 0 && c.Segmentation.Window%2 == 0 {
		return configErrorf("segmentation window must be odd, got %d", c.Segmentation.Window)
	}
	if c.Tracking.MaxDistance < 0 {
		return configErrorf("tracking max_distance must not be negative, got %v", c.Tracking.MaxDistance)
	}
	if c.Background.TileSize < 2 {
		return configErrorf("background tile_size must be at least 2, got %d", c.Background.TileSize)
	}
	return nil
}

// FOVList expands the configured FOV selection against the acquisition's
// FOV count. Selections outside [0, total) are configuration errors.
func (c *Config) FOVList(total int) ([]int, error) {
	sel, err := parseFOVSelection(c.Processing.FOVs)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, fov := range sel {
		if fov >= total {
			return nil, configErrorf("fov %d outside acquisition range [0, %d)", fov, total)
		}
	}
	return sel, nil
}

// parseFOVSelection returns nil for "all", otherwise the explicit ascending
// FOV list the selection denotes.
func parseFOVSelection(selection string) ([]int, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" || strings.EqualFold(selection, "all") {
		return nil, nil
	}
	if strings.Contains(selection, "-") && !strings.Contains(selection, ",") {
		parts := strings.SplitN(selection, "-", 2)
		lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			return nil, configErrorf("invalid fov range %q", selection)
		}
		if lo < 0 || hi < lo {
			return nil, configErrorf("invalid fov range %q", selection)
		}
		fovs := make([]int, 0, hi-lo+1)
		for fov := lo; fov <= hi; fov++ {
			fovs = append(fovs, fov)
		}
		return fovs, nil
	}

	seen := map[int]struct{}{}
	var fovs []int
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fov, err := strconv.Atoi(part)
		if err != nil {
			return nil, configErrorf("invalid fov %q in selection %q", part, selection)
		}
		if fov < 0 {
			return nil, configErrorf("fov %d must not be negative", fov)
		}
		if _, dup := seen[fov]; dup {
			continue
		}
		seen[fov] = struct{}{}
		fovs = append(fovs, fov)
	}
	if len(fovs) == 0 {
		return nil, configErrorf("empty fov selection %q", selection)
	}
	sort.Ints(fovs)
	return fovs, nil
}
