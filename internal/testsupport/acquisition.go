package testsupport

import (
	"os"
	"testing"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/config"
	"cytopipe/internal/paths"
	"cytopipe/internal/stack"
)

// Geometry of the synthetic cells drawn by WriteAcquisition. Two square
// cells drift one pixel per frame so tracking has real motion to follow.
const (
	CellSize       = 8
	CellBright     = 4000
	BackgroundGray = 100
)

// WriteAcquisition builds a synthetic acquisition under
// cfg.Paths.AcquisitionDir: a metadata sidecar plus one uint16 stack per
// (FOV, channel). Every channel of every FOV shows the same two moving
// square cells on a flat background, offset per FOV so stacks differ.
func WriteAcquisition(t testing.TB, cfg *config.Config, fovs, channels, frames, height, width int) *acquisition.Metadata {
	t.Helper()

	dir := cfg.Paths.AcquisitionDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir acquisition dir: %v", err)
	}
	meta := &acquisition.Metadata{
		Name:     "synthetic",
		Frames:   frames,
		FOVs:     fovs,
		Channels: channels,
		Height:   height,
		Width:    width,
		DType:    "uint16",
	}
	if err := acquisition.SaveMetadata(dir, meta); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	for fov := 0; fov < fovs; fov++ {
		for ch := 0; ch < channels; ch++ {
			st := NewCellStack(frames, height, width, fov)
			if err := stack.WriteUint16(paths.RawStack(dir, fov, ch), st); err != nil {
				t.Fatalf("write raw stack fov=%d channel=%d: %v", fov, ch, err)
			}
		}
	}
	return meta
}

// NewCellStack renders the synthetic scene: flat background with two
// bright squares drifting right one pixel per frame. The FOV index
// shifts the starting positions so different FOVs are distinguishable.
func NewCellStack(frames, height, width, fov int) *stack.Uint16 {
	st := stack.NewUint16(frames, height, width)
	for i := range st.Data {
		st.Data[i] = BackgroundGray
	}
	for t := 0; t < frames; t++ {
		plane := st.Frame(t)
		offset := fov % 3
		DrawSquare(plane, width, height, 4+t+offset, 4+offset, CellSize, CellBright)
		DrawSquare(plane, width, height, 4+t+offset, height/2+offset, CellSize, CellBright)
	}
	return st
}

// DrawSquare paints a filled size x size square at (x0, y0), clipped to
// the plane bounds.
func DrawSquare(plane []uint16, width, height, x0, y0, size int, value uint16) {
	for y := y0; y < y0+size && y < height; y++ {
		if y < 0 {
			continue
		}
		for x := x0; x < x0+size && x < width; x++ {
			if x < 0 {
				continue
			}
			plane[y*width+x] = value
		}
	}
}
