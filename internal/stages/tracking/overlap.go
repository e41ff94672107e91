package tracking

import (
	"fmt"

	"cytopipe/internal/cancel"
	"cytopipe/internal/labels"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
)

// overlapLinker links each region to the previous frame's track it shares
// the most pixels with. Ties break toward the lower track ID, each track
// claims at most one region per frame (largest overlap wins), and unmatched
// regions open fresh tracks from a monotonically increasing counter.
type overlapLinker struct{}

func (l *overlapLinker) Track(in, out *stack.Uint16, tok *cancel.Token, sink progress.Sink) error {
	if len(in.Data) != len(out.Data) {
		return fmt.Errorf("input and output stacks differ in shape")
	}
	size := in.Height * in.Width
	nextID := uint16(1)

	for t := 0; t < in.Frames; t++ {
		if tok.Cancelled() {
			return nil
		}
		cur := in.Frame(t)
		dst := out.Frame(t)

		if t == 0 {
			remap := map[uint16]uint16{}
			for _, reg := range labels.Regions(cur, in.Height, in.Width) {
				if nextID == 0xFFFF {
					return fmt.Errorf("track ID space exhausted at frame %d", t)
				}
				remap[reg.ID] = nextID
				nextID++
			}
			applyRemap(dst, cur, remap)
			sink.Report(t+1, in.Frames, "track")
			continue
		}

		prev := out.Frame(t - 1)
		// overlap[region label][previous track] = shared pixel count.
		overlap := map[uint16]map[uint16]int{}
		for i := 0; i < size; i++ {
			id := cur[i]
			if id == 0 {
				continue
			}
			prevID := prev[i]
			if prevID == 0 {
				continue
			}
			m, ok := overlap[id]
			if !ok {
				m = map[uint16]int{}
				overlap[id] = m
			}
			m[prevID]++
		}

		regions := labels.Regions(cur, in.Height, in.Width)
		claimed := map[uint16]claim{}
		for _, reg := range regions {
			track, pixels := bestPredecessor(overlap[reg.ID])
			if track == 0 {
				continue
			}
			prior, taken := claimed[track]
			if !taken || pixels > prior.pixels || (pixels == prior.pixels && reg.ID < prior.label) {
				claimed[track] = claim{label: reg.ID, pixels: pixels}
			}
		}

		remap := make(map[uint16]uint16, len(regions))
		for track, c := range claimed {
			remap[c.label] = track
		}
		for _, reg := range regions {
			if _, ok := remap[reg.ID]; !ok {
				if nextID == 0xFFFF {
					return fmt.Errorf("track ID space exhausted at frame %d", t)
				}
				remap[reg.ID] = nextID
				nextID++
			}
		}
		applyRemap(dst, cur, remap)
		sink.Report(t+1, in.Frames, "track")
	}
	return nil
}

type claim struct {
	label  uint16
	pixels int
}

// bestPredecessor returns the previous track sharing the most pixels,
// breaking ties toward the lower track ID. Zero means no overlap at all.
func bestPredecessor(counts map[uint16]int) (uint16, int) {
	var best uint16
	bestCount := 0
	for track, count := range counts {
		if count > bestCount || (count == bestCount && best != 0 && track < best) {
			best = track
			bestCount = count
		}
	}
	return best, bestCount
}

func applyRemap(dst, src []uint16, remap map[uint16]uint16) {
	for i, id := range src {
		if id == 0 {
			dst[i] = 0
			continue
		}
		dst[i] = remap[id]
	}
}
