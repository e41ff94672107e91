package labels

// Binary morphology with a 3x3 cross structuring element, matching the
// 4-connectivity used for component labeling.

// Dilated returns a copy of mask grown by the given number of passes.
func Dilated(mask []bool, height, width, passes int) []bool {
	cur := append([]bool(nil), mask...)
	if passes <= 0 {
		return cur
	}
	next := make([]bool, len(mask))
	for p := 0; p < passes; p++ {
		dilateOnce(next, cur, height, width)
		cur, next = next, cur
	}
	return cur
}

// Eroded returns a copy of mask shrunk by the given number of passes.
func Eroded(mask []bool, height, width, passes int) []bool {
	cur := append([]bool(nil), mask...)
	if passes <= 0 {
		return cur
	}
	next := make([]bool, len(mask))
	for p := 0; p < passes; p++ {
		erodeOnce(next, cur, height, width)
		cur, next = next, cur
	}
	return cur
}

// Opened erodes then dilates, removing speckle smaller than the element.
func Opened(mask []bool, height, width, passes int) []bool {
	return Dilated(Eroded(mask, height, width, passes), height, width, passes)
}

// Closed dilates then erodes, bridging small gaps.
func Closed(mask []bool, height, width, passes int) []bool {
	return Eroded(Dilated(mask, height, width, passes), height, width, passes)
}

func dilateOnce(dst, src []bool, height, width int) {
	for y := 0; y < height; y++ {
		base := y * width
		for x := 0; x < width; x++ {
			idx := base + x
			v := src[idx]
			if !v && x > 0 {
				v = src[idx-1]
			}
			if !v && x+1 < width {
				v = src[idx+1]
			}
			if !v && y > 0 {
				v = src[idx-width]
			}
			if !v && y+1 < height {
				v = src[idx+width]
			}
			dst[idx] = v
		}
	}
}

func erodeOnce(dst, src []bool, height, width int) {
	for y := 0; y < height; y++ {
		base := y * width
		for x := 0; x < width; x++ {
			idx := base + x
			v := src[idx]
			// Image border counts as background, so objects touching
			// the edge erode from that side too.
			if v {
				v = x > 0 && src[idx-1] &&
					x+1 < width && src[idx+1] &&
					y > 0 && src[idx-width] &&
					y+1 < height && src[idx+width]
			}
			dst[idx] = v
		}
	}
}

// FillHoles sets to true every false pixel not reachable from the image
// border through false pixels (4-connectivity).
func FillHoles(mask []bool, height, width int) {
	outside := make([]bool, len(mask))
	var queue []int
	push := func(idx int) {
		if !mask[idx] && !outside[idx] {
			outside[idx] = true
			queue = append(queue, idx)
		}
	}
	for x := 0; x < width; x++ {
		push(x)
		push((height-1)*width + x)
	}
	for y := 0; y < height; y++ {
		push(y * width)
		push(y*width + width - 1)
	}
	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		y, x := idx/width, idx%width
		if x > 0 {
			push(idx - 1)
		}
		if x+1 < width {
			push(idx + 1)
		}
		if y > 0 {
			push(idx - width)
		}
		if y+1 < height {
			push(idx + width)
		}
	}
	for i := range mask {
		if !mask[i] && !outside[i] {
			mask[i] = true
		}
	}
}
