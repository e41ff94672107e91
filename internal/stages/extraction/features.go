// Package extraction turns crop containers into a tidy per-cell feature
// table, one row per cell and frame, one column per configured feature
// and channel.
package extraction

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Input bundles everything a feature function may need for one cell in
// one frame. Background is nil when no background estimate exists for
// the channel; feature functions must treat that as "no subtraction",
// not as an error. Weight is already clamped to [0, 1].
type Input struct {
	Crop       []uint16
	Mask       []bool
	Background []float64
	Weight     float64
	Height     int
	Width      int
}

// Func computes one scalar feature from a cell crop.
type Func func(in Input) float64

var registry = map[string]Func{
	"mean":   featureMean,
	"median": featureMedian,
	"total":  featureTotal,
	"max":    featureMax,
	"std":    featureStd,
	"area":   featureArea,
}

// Lookup resolves a feature name to its function.
func Lookup(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown feature %q (available: %v)", name, FeatureNames())
	}
	return fn, nil
}

// FeatureNames returns the registered feature names, sorted.
func FeatureNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// values collects the background-subtracted intensities of the pixels
// selected by the mask. A nil mask selects every pixel in the crop.
func values(in Input) []float64 {
	out := make([]float64, 0, len(in.Crop))
	for i, v := range in.Crop {
		if in.Mask != nil && !in.Mask[i] {
			continue
		}
		x := float64(v)
		if in.Background != nil {
			x -= in.Weight * in.Background[i]
		}
		out = append(out, x)
	}
	return out
}

func featureMean(in Input) float64 {
	vs := values(in)
	if len(vs) == 0 {
		return 0
	}
	return stat.Mean(vs, nil)
}

func featureMedian(in Input) float64 {
	vs := values(in)
	if len(vs) == 0 {
		return 0
	}
	sort.Float64s(vs)
	return stat.Quantile(0.5, stat.Empirical, vs, nil)
}

func featureTotal(in Input) float64 {
	total := 0.0
	for _, v := range values(in) {
		total += v
	}
	return total
}

func featureMax(in Input) float64 {
	vs := values(in)
	if len(vs) == 0 {
		return 0
	}
	max := vs[0]
	for _, v := range vs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func featureStd(in Input) float64 {
	vs := values(in)
	if len(vs) < 2 {
		return 0
	}
	return stat.StdDev(vs, nil)
}

// featureArea counts mask pixels; with a full-box selection it is the
// crop size.
func featureArea(in Input) float64 {
	if in.Mask == nil {
		return float64(len(in.Crop))
	}
	n := 0
	for _, v := range in.Mask {
		if v {
			n++
		}
	}
	return float64(n)
}
