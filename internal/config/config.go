package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	AcquisitionDir string `toml:"acquisition_dir"`
	OutputDir      string `toml:"output_dir"`
	LogDir         string `toml:"log_dir"`
}

// ChannelSelection pairs a channel index with the features to extract from
// it. UseFullBox makes feature functions receive the whole padded bounding
// box instead of the cell mask.
type ChannelSelection struct {
	Channel    int      `toml:"channel"`
	Features   []string `toml:"features"`
	UseFullBox bool     `toml:"use_full_box"`
}

// Channels selects the phase-contrast channel (segmentation and tracking
// input, optional) and zero or more fluorescence channels.
type Channels struct {
	PhaseContrast *ChannelSelection  `toml:"phase_contrast"`
	Fluorescence  []ChannelSelection `toml:"fluorescence"`
}

// Processing contains the run parameters. Immutable for the duration of a
// run and persisted next to the outputs for provenance.
type Processing struct {
	// FOVs selects fields of view: "all", a range "2-5", or a list "0,3,7".
	FOVs             string  `toml:"fovs"`
	BatchSize        int     `toml:"batch_size"`
	Workers          int     `toml:"workers"`
	CropPadding      int     `toml:"crop_padding"`
	MaskMargin       int     `toml:"mask_margin"`
	MinFrames        int     `toml:"min_frames"`
	BackgroundWeight float64 `toml:"background_weight"`
	MinFreeDiskGiB   int     `toml:"min_free_disk_gib"`
}

// Segmentation configures the segmentation method and its parameters.
type Segmentation struct {
	Method       string `toml:"method"`
	Window       int    `toml:"window"`
	SmoothPasses int    `toml:"smooth_passes"`
	MinCellArea  int    `toml:"min_cell_area"`
	MaxCellArea  int    `toml:"max_cell_area"`
}

// Tracking configures the tracking method and its parameters.
type Tracking struct {
	Method      string  `toml:"method"`
	MaxDistance float64 `toml:"max_distance"`
	MaxMissed   int     `toml:"max_missed"`
}

// Background configures fluorescence background estimation.
type Background struct {
	TileSize int `toml:"tile_size"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cytopipe.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Channels     Channels     `toml:"channels"`
	Processing   Processing   `toml:"processing"`
	Segmentation Segmentation `toml:"segmentation"`
	Tracking     Tracking     `toml:"tracking"`
	Background   Background   `toml:"background"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cytopipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cytopipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SelectedChannels returns all configured channel indices, PC first, in
// configuration order with duplicates removed.
func (c *Config) SelectedChannels() []int {
	seen := map[int]struct{}{}
	var channels []int
	add := func(ch int) {
		if _, ok := seen[ch]; ok {
			return
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	if c.Channels.PhaseContrast != nil {
		add(c.Channels.PhaseContrast.Channel)
	}
	for _, sel := range c.Channels.Fluorescence {
		add(sel.Channel)
	}
	return channels
}

// Save writes the configuration as TOML to path.
func (c *Config) Save(path string) error {
	raw, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveIfAbsent persists the configuration at path unless a file already
// exists there. A prior run's recorded configuration is never overwritten.
func (c *Config) SaveIfAbsent(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat run config: %w", err)
	}
	return c.Save(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
