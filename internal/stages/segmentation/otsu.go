package segmentation

// otsu is a global intensity threshold maximizing between-class variance.
// Useful when illumination is even and cells are brighter than background,
// e.g. fluorescent nuclear markers imaged in the tracking channel.
type otsu struct{}

func (otsu) Threshold(frame []uint16, height, width int, mask []bool) {
	var hi uint16
	for _, v := range frame {
		if v > hi {
			hi = v
		}
	}
	if hi == 0 {
		for i := range mask {
			mask[i] = false
		}
		return
	}

	scale := float64(histogramBins-1) / float64(hi)
	counts := make([]float64, histogramBins)
	for _, v := range frame {
		counts[int(float64(v)*scale)]++
	}

	total := float64(len(frame))
	var sumAll float64
	for bin, count := range counts {
		sumAll += float64(bin) * count
	}

	var wBack, sumBack, bestVar float64
	bestBin := 0
	for bin := 0; bin < histogramBins; bin++ {
		wBack += counts[bin]
		if wBack == 0 {
			continue
		}
		wFore := total - wBack
		if wFore == 0 {
			break
		}
		sumBack += float64(bin) * counts[bin]
		meanBack := sumBack / wBack
		meanFore := (sumAll - sumBack) / wFore
		betweenVar := wBack * wFore * (meanBack - meanFore) * (meanBack - meanFore)
		if betweenVar > bestVar {
			bestVar = betweenVar
			bestBin = bin
		}
	}

	thr := uint16(float64(bestBin) / scale)
	for i, v := range frame {
		mask[i] = v > thr
	}
}
