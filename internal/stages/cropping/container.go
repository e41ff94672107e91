package cropping

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"cytopipe/internal/cancel"
	"cytopipe/internal/labels"
)

// CellCrop holds everything extracted for one tracked cell: its padded
// bounding box, frame indices, binary masks, and pixel crops per channel
// and per background channel. Slice positions correspond across fields:
// Boxes[i], Masks[i], and every Channels[ch][i] belong to FrameIndices[i].
type CellCrop struct {
	ID           uint16
	FrameIndices []int
	Boxes        []labels.Rect
	Masks        [][]bool
	Channels     map[int][][]uint16
	Backgrounds  map[int][][]float64
}

// Container is the per-FOV crop store keyed by cell ID.
type Container struct {
	FOV   int
	Cells map[uint16]*CellCrop
}

type containerHeader struct {
	FOV       int
	CellCount int
}

// saveContainer streams the container to path, checking the cancellation
// token between cells. A cancelled save removes the partial file and
// reports cancelled=true with a nil error; the artifact either exists
// complete or not at all.
func saveContainer(path string, c *Container, tok *cancel.Token) (cancelled bool, err error) {
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create crop container: %w", err)
	}
	enc := gob.NewEncoder(f)

	abort := func() {
		_ = f.Close()
		_ = os.Remove(path)
	}

	if err := enc.Encode(containerHeader{FOV: c.FOV, CellCount: len(c.Cells)}); err != nil {
		abort()
		return false, fmt.Errorf("encode crop header: %w", err)
	}

	ids := make([]uint16, 0, len(c.Cells))
	for id := range c.Cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if tok.Cancelled() {
			abort()
			return true, nil
		}
		if err := enc.Encode(c.Cells[id]); err != nil {
			abort()
			return false, fmt.Errorf("encode cell %d: %w", id, err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("close crop container: %w", err)
	}
	return false, nil
}

// LoadContainer reads a crop container written by the cropping stage.
func LoadContainer(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	var header containerHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("decode crop header: %w", err)
	}
	c := &Container{FOV: header.FOV, Cells: make(map[uint16]*CellCrop, header.CellCount)}
	for i := 0; i < header.CellCount; i++ {
		var cell CellCrop
		if err := dec.Decode(&cell); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("crop container truncated after %d of %d cells", i, header.CellCount)
			}
			return nil, fmt.Errorf("decode cell %d: %w", i, err)
		}
		c.Cells[cell.ID] = &cell
	}
	return c, nil
}
