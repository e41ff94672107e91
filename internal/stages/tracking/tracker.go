// Package tracking assigns time-consistent IDs to the per-frame labels the
// segmentation stage produced. Trackers are pluggable behind one interface:
// the default frame-to-frame overlap linker, and a Kalman-filter tracker for
// actively moving cells that treats each frame's regions as noisy
// detections of underlying tracks.
package tracking

import (
	"fmt"
	"sort"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
)

// Tracker rewrites the labels of in into out with IDs stable across time.
// Both stacks share one shape. New IDs are allocated monotonically and
// never reused within a FOV. Observing the cancellation token stops the
// tracker between frames; the partial out content is then discarded by the
// caller.
type Tracker interface {
	Track(in, out *stack.Uint16, tok *cancel.Token, sink progress.Sink) error
}

type factory func(cfg config.Tracking) Tracker

var registry = map[string]factory{
	"overlap": func(cfg config.Tracking) Tracker {
		return &overlapLinker{}
	},
	"kalman": func(cfg config.Tracking) Tracker {
		return newKalmanTracker(cfg)
	},
}

// NewTracker resolves a configured tracking method name once, at
// configuration time.
func NewTracker(cfg config.Tracking) (Tracker, error) {
	f, ok := registry[cfg.Method]
	if !ok {
		return nil, fmt.Errorf("unknown tracking method %q (have %v)", cfg.Method, TrackerNames())
	}
	return f(cfg), nil
}

// TrackerNames lists the registered trackers, sorted.
func TrackerNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
