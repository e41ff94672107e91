// Package segmentation labels cells in the phase-contrast channel. Methods
// turn one raw frame into a foreground mask; the stage owns hole filling,
// smoothing, component labeling, and the size filter, so methods stay small.
package segmentation

import (
	"fmt"
	"sort"

	"cytopipe/internal/config"
)

// Method binarizes a single frame into a foreground mask.
type Method interface {
	Threshold(frame []uint16, height, width int, mask []bool)
}

type factory func(cfg config.Segmentation) Method

var registry = map[string]factory{
	"logstd": func(cfg config.Segmentation) Method {
		window := cfg.Window
		if window <= 0 {
			window = 15
		}
		return &logStd{window: window}
	},
	"otsu": func(config.Segmentation) Method {
		return otsu{}
	},
}

// NewMethod resolves a configured segmentation method name once, at
// configuration time.
func NewMethod(cfg config.Segmentation) (Method, error) {
	f, ok := registry[cfg.Method]
	if !ok {
		return nil, fmt.Errorf("unknown segmentation method %q (have %v)", cfg.Method, MethodNames())
	}
	return f(cfg), nil
}

// MethodNames lists the registered methods, sorted.
func MethodNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
