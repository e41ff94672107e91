package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
acquisition_dir = "` + dir + `/acq"
output_dir = "` + dir + `/out"

[processing]
fovs = "0-2"
batch_size = 2
workers = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Processing.BatchSize != 2 || cfg.Processing.Workers != 3 {
		t.Fatalf("overrides not applied: %+v", cfg.Processing)
	}
	// Defaults survive for unset sections.
	if cfg.Segmentation.Method != "logstd" {
		t.Fatalf("default segmentation method lost: %q", cfg.Segmentation.Method)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero batch", func(c *Config) { c.Processing.BatchSize = 0 }, "batch_size"},
		{"zero workers", func(c *Config) { c.Processing.Workers = 0 }, "workers"},
		{"weight above one", func(c *Config) { c.Processing.BackgroundWeight = 1.5 }, "background_weight"},
		{"negative fov", func(c *Config) { c.Processing.FOVs = "-3" }, "fov"},
		{"bad range", func(c *Config) { c.Processing.FOVs = "5-2" }, "fov range"},
		{"even window", func(c *Config) { c.Segmentation.Window = 8 }, "window"},
		{"duplicate fl channel", func(c *Config) {
			c.Channels.Fluorescence = []ChannelSelection{{Channel: 1}, {Channel: 1}}
		}, "twice"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error containing %q, got %v", c.want, err)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("error not marked as configuration error: %v", err)
			}
		})
	}
}

func TestFOVList(t *testing.T) {
	cases := []struct {
		selection string
		total     int
		want      []int
		wantErr   bool
	}{
		{"all", 3, []int{0, 1, 2}, false},
		{"1-3", 6, []int{1, 2, 3}, false},
		{"4,0,2,2", 6, []int{0, 2, 4}, false},
		{"2-4", 3, nil, true},
		{"9", 3, nil, true},
	}
	for _, c := range cases {
		cfg := Default()
		cfg.Processing.FOVs = c.selection
		got, err := cfg.FOVList(c.total)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", c.selection)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", c.selection, err)
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%q: got %v want %v", c.selection, got, c.want)
		}
	}
}

func TestSelectedChannels(t *testing.T) {
	cfg := Default()
	cfg.Channels.PhaseContrast = &ChannelSelection{Channel: 0}
	cfg.Channels.Fluorescence = []ChannelSelection{{Channel: 1}, {Channel: 0}, {Channel: 2}}
	got := cfg.SelectedChannels()
	if !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Fatalf("unexpected channels: %v", got)
	}
}

func TestSaveIfAbsentNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cytopipe.toml")

	first := Default()
	first.Processing.BatchSize = 7
	if err := first.SaveIfAbsent(path); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second := Default()
	second.Processing.BatchSize = 99
	if err := second.SaveIfAbsent(path); err != nil {
		t.Fatalf("second save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "batch_size = 7") {
		t.Fatal("prior run configuration was overwritten")
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}
