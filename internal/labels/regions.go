package labels

import (
	"fmt"
	"sort"
)

// Region summarizes one labeled object within a single frame.
type Region struct {
	ID   uint16
	Area int
	Box  Rect
	// CX, CY is the pixel centroid.
	CX, CY float64
}

// Regions scans a labeled frame and returns one Region per positive label,
// sorted by ascending ID.
func Regions(frame []uint16, height, width int) []Region {
	acc := map[uint16]*Region{}
	for y := 0; y < height; y++ {
		row := frame[y*width : (y+1)*width]
		for x, id := range row {
			if id == 0 {
				continue
			}
			reg, ok := acc[id]
			if !ok {
				reg = &Region{ID: id, Box: Rect{MinX: x, MinY: y, MaxX: x + 1, MaxY: y + 1}}
				acc[id] = reg
			}
			reg.Area++
			reg.CX += float64(x)
			reg.CY += float64(y)
			if x < reg.Box.MinX {
				reg.Box.MinX = x
			}
			if x+1 > reg.Box.MaxX {
				reg.Box.MaxX = x + 1
			}
			if y < reg.Box.MinY {
				reg.Box.MinY = y
			}
			if y+1 > reg.Box.MaxY {
				reg.Box.MaxY = y + 1
			}
		}
	}
	regions := make([]Region, 0, len(acc))
	for _, reg := range acc {
		reg.CX /= float64(reg.Area)
		reg.CY /= float64(reg.Area)
		regions = append(regions, *reg)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })
	return regions
}

// ConnectedComponents labels the true pixels of mask using 4-connectivity,
// writing sequential IDs starting at 1 into out. It returns the number of
// components found.
func ConnectedComponents(mask []bool, height, width int, out []uint16) (int, error) {
	if len(out) != len(mask) {
		return 0, fmt.Errorf("output length %d does not match mask length %d", len(out), len(mask))
	}
	for i := range out {
		out[i] = 0
	}
	var queue []int
	next := uint16(0)
	for start, on := range mask {
		if !on || out[start] != 0 {
			continue
		}
		if next == 0xFFFF {
			return 0, fmt.Errorf("more than %d components in one frame", 0xFFFF)
		}
		next++
		out[start] = next
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			y, x := idx/width, idx%width
			if x > 0 && mask[idx-1] && out[idx-1] == 0 {
				out[idx-1] = next
				queue = append(queue, idx-1)
			}
			if x+1 < width && mask[idx+1] && out[idx+1] == 0 {
				out[idx+1] = next
				queue = append(queue, idx+1)
			}
			if y > 0 && mask[idx-width] && out[idx-width] == 0 {
				out[idx-width] = next
				queue = append(queue, idx-width)
			}
			if y+1 < height && mask[idx+width] && out[idx+width] == 0 {
				out[idx+width] = next
				queue = append(queue, idx+width)
			}
		}
	}
	return int(next), nil
}

// FilterBySize clears labels whose pixel count falls outside [minArea,
// maxArea]. A zero bound disables that side. Surviving labels keep their
// IDs; renumbering is deliberately skipped.
func FilterBySize(frame []uint16, height, width, minArea, maxArea int) {
	if minArea <= 0 && maxArea <= 0 {
		return
	}
	counts := map[uint16]int{}
	for _, id := range frame {
		if id != 0 {
			counts[id]++
		}
	}
	drop := map[uint16]struct{}{}
	for id, area := range counts {
		if minArea > 0 && area < minArea {
			drop[id] = struct{}{}
		}
		if maxArea > 0 && area > maxArea {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return
	}
	for i, id := range frame {
		if _, gone := drop[id]; gone {
			frame[i] = 0
		}
	}
}
