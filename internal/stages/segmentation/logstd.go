package segmentation

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// logStd binarizes on local texture: flat background has low local variance
// under phase contrast while cell bodies scatter light. The threshold is the
// histogram mode of the log-std image plus three standard deviations of the
// sub-mode population.
type logStd struct {
	window int
}

func (m *logStd) Threshold(frame []uint16, height, width int, mask []bool) {
	logsd := localLogStd(frame, height, width, m.window)
	thr := modePlusThreeSigma(logsd)
	for i, v := range logsd {
		mask[i] = v > thr
	}
}

// localLogStd computes log(sigma) over a sliding window per pixel using
// summed-area tables, so the cost is independent of window size.
func localLogStd(frame []uint16, height, width, window int) []float64 {
	// Integral images carry an extra leading row and column of zeros.
	iw := width + 1
	sum := make([]float64, (height+1)*iw)
	sqSum := make([]float64, (height+1)*iw)
	for y := 0; y < height; y++ {
		var rowSum, rowSq float64
		for x := 0; x < width; x++ {
			v := float64(frame[y*width+x])
			rowSum += v
			rowSq += v * v
			sum[(y+1)*iw+x+1] = sum[y*iw+x+1] + rowSum
			sqSum[(y+1)*iw+x+1] = sqSum[y*iw+x+1] + rowSq
		}
	}

	r := window / 2
	out := make([]float64, height*width)
	for y := 0; y < height; y++ {
		y0, y1 := y-r, y+r+1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > height {
			y1 = height
		}
		for x := 0; x < width; x++ {
			x0, x1 := x-r, x+r+1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > width {
				x1 = width
			}
			n := float64((y1 - y0) * (x1 - x0))
			s := sum[y1*iw+x1] - sum[y0*iw+x1] - sum[y1*iw+x0] + sum[y0*iw+x0]
			sq := sqSum[y1*iw+x1] - sqSum[y0*iw+x1] - sqSum[y1*iw+x0] + sqSum[y0*iw+x0]
			mean := s / n
			variance := sq/n - mean*mean
			if variance < 0 {
				variance = 0
			}
			out[y*width+x] = math.Log(math.Sqrt(variance) + 1e-6)
		}
	}
	return out
}

const histogramBins = 256

// modePlusThreeSigma picks the histogram-mode value of the image and adds
// three standard deviations of the population at or below the mode.
func modePlusThreeSigma(values []float64) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		// Featureless frame: nothing exceeds the threshold.
		return hi + 1
	}

	binWidth := (hi - lo) / histogramBins
	counts := make([]int, histogramBins)
	for _, v := range values {
		bin := int((v - lo) / binWidth)
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		counts[bin]++
	}
	modeBin := 0
	for bin, count := range counts {
		if count > counts[modeBin] {
			modeBin = bin
		}
	}
	mode := lo + (float64(modeBin)+0.5)*binWidth

	sub := make([]float64, 0, len(values))
	for _, v := range values {
		if v <= mode {
			sub = append(sub, v)
		}
	}
	if len(sub) < 2 {
		return mode
	}
	return mode + 3*stat.StdDev(sub, nil)
}
