package tracking

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"

	"cytopipe/internal/cancel"
	"cytopipe/internal/config"
	"cytopipe/internal/labels"
	"cytopipe/internal/progress"
	"cytopipe/internal/stack"
)

// kalmanTracker treats each frame's regions as noisy detections of moving
// cells. Every track carries a constant-velocity Kalman filter over its
// centroid; detections are matched to predicted positions with the
// Hungarian algorithm and gated by a maximum distance. Markedly slower than
// the overlap linker, but it survives cells that move more than their own
// diameter between frames.
type kalmanTracker struct {
	maxDistance float64
	maxMissed   int
}

func newKalmanTracker(cfg config.Tracking) *kalmanTracker {
	maxDistance := cfg.MaxDistance
	if maxDistance <= 0 {
		maxDistance = 40
	}
	maxMissed := cfg.MaxMissed
	if maxMissed <= 0 {
		maxMissed = 3
	}
	return &kalmanTracker{maxDistance: maxDistance, maxMissed: maxMissed}
}

type kalmanTrack struct {
	id     uint16
	filter *kalman_filter.Kalman2D
	px, py float64
	missed int
}

// Filter process/measurement noise, matching the blob defaults of the
// upstream filter library.
const (
	filterDt       = 1.0
	filterUx       = 1.0
	filterUy       = 1.0
	filterStdDevA  = 2.0
	filterStdDevMx = 0.1
	filterStdDevMy = 0.1
)

// Track implements Tracker. The filter and assignment libraries fault on
// malformed configuration rather than returning errors, so the whole pass
// runs under a recover that converts a crash into a recoverable, clearly
// attributed error for the per-FOV runner.
func (k *kalmanTracker) Track(in, out *stack.Uint16, tok *cancel.Token, sink progress.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("kalman tracker crashed: %v (verify tracking.max_distance and the segmentation output)", r)
		}
	}()

	if len(in.Data) != len(out.Data) {
		return errors.New("input and output stacks differ in shape")
	}

	var tracks []*kalmanTrack
	nextID := uint16(1)

	for t := 0; t < in.Frames; t++ {
		if tok.Cancelled() {
			return nil
		}
		cur := in.Frame(t)
		regions := labels.Regions(cur, in.Height, in.Width)

		for _, tr := range tracks {
			tr.filter.Predict()
			tr.px, tr.py = tr.filter.GetState()
		}

		matches := k.assign(tracks, regions)

		remap := make(map[uint16]uint16, len(regions))
		matchedTracks := make(map[int]struct{}, len(matches))
		matchedRegions := make(map[int]struct{}, len(matches))
		for _, m := range matches {
			tr := tracks[m[0]]
			reg := regions[m[1]]
			if uerr := tr.filter.Update(reg.CX, reg.CY); uerr != nil {
				return errors.Wrapf(uerr, "update track %d", tr.id)
			}
			tr.missed = 0
			remap[reg.ID] = tr.id
			matchedTracks[m[0]] = struct{}{}
			matchedRegions[m[1]] = struct{}{}
		}

		// Track indices in matchedTracks refer to this slice before any
		// newborn appends; tracks born this frame cannot be missed yet.
		preexisting := len(tracks)

		for i, reg := range regions {
			if _, ok := matchedRegions[i]; ok {
				continue
			}
			if nextID == 0xFFFF {
				return errors.Errorf("track ID space exhausted at frame %d", t)
			}
			filter := kalman_filter.NewKalman2D(
				filterDt, filterUx, filterUy,
				filterStdDevA, filterStdDevMx, filterStdDevMy,
				kalman_filter.WithState2D(reg.CX, reg.CY),
			)
			tracks = append(tracks, &kalmanTrack{id: nextID, filter: filter, px: reg.CX, py: reg.CY})
			remap[reg.ID] = nextID
			nextID++
		}

		alive := tracks[:0]
		for i, tr := range tracks {
			if _, ok := matchedTracks[i]; !ok && i < preexisting {
				tr.missed++
			}
			if tr.missed <= k.maxMissed {
				alive = append(alive, tr)
			}
		}
		tracks = alive

		applyRemap(out.Frame(t), cur, remap)
		sink.Report(t+1, in.Frames, "track")
	}
	return nil
}

// assign matches tracks to regions maximizing closeness benefit, then gates
// the result by the configured maximum distance. Returned pairs are
// (track index, region index).
func (k *kalmanTracker) assign(tracks []*kalmanTrack, regions []labels.Region) [][2]int {
	if len(tracks) == 0 || len(regions) == 0 {
		return nil
	}
	n := len(tracks)
	if len(regions) > n {
		n = len(regions)
	}
	benefit := make([][]float64, n)
	for i := range benefit {
		benefit[i] = make([]float64, n)
	}
	for i, tr := range tracks {
		for j, reg := range regions {
			dx := tr.px - reg.CX
			dy := tr.py - reg.CY
			dist := dx*dx + dy*dy
			gate := k.maxDistance * k.maxDistance
			if dist <= gate {
				benefit[i][j] = gate - dist
			}
		}
	}

	assignment := hungarian.SolveMax(benefit)
	var matches [][2]int
	for trackIdx, row := range assignment {
		if trackIdx >= len(tracks) {
			continue
		}
		for regionIdx, value := range row {
			if regionIdx >= len(regions) || value <= 0 {
				continue
			}
			matches = append(matches, [2]int{trackIdx, regionIdx})
			break
		}
	}
	return matches
}
