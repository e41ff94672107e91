package config

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: "~/.local/share/cytopipe/logs",
		},
		Channels: Channels{
			PhaseContrast: &ChannelSelection{Channel: 0},
		},
		Processing: Processing{
			FOVs:             "all",
			BatchSize:        4,
			Workers:          2,
			CropPadding:      5,
			MaskMargin:       0,
			MinFrames:        3,
			BackgroundWeight: 1.0,
			MinFreeDiskGiB:   2,
		},
		Segmentation: Segmentation{
			Method:       "logstd",
			Window:       15,
			SmoothPasses: 3,
			MinCellArea:  0,
			MaxCellArea:  0,
		},
		Tracking: Tracking{
			Method:      "overlap",
			MaxDistance: 40,
			MaxMissed:   3,
		},
		Background: Background{
			TileSize: 32,
		},
		Logging: Logging{
			Format: "auto",
			Level:  "info",
		},
	}
}
