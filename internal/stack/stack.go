// Package stack holds the in-memory and on-disk representation of per-FOV
// image stacks. Every artifact the stages exchange is a (frames, height,
// width) array persisted as a NumPy .npy file, so downstream tooling can
// open the intermediates directly.
package stack

import "fmt"

// Uint16 is a (frames, height, width) stack of unsigned 16-bit planes.
// Frame stacks and labeled segmentation arrays both use this layout;
// for labels, 0 is background and positive values are cell IDs.
type Uint16 struct {
	Frames int
	Height int
	Width  int
	Data   []uint16
}

// NewUint16 allocates a zeroed stack with the given shape.
func NewUint16(frames, height, width int) *Uint16 {
	return &Uint16{
		Frames: frames,
		Height: height,
		Width:  width,
		Data:   make([]uint16, frames*height*width),
	}
}

// Frame returns the plane for time index t as a view into the stack.
func (s *Uint16) Frame(t int) []uint16 {
	size := s.Height * s.Width
	return s.Data[t*size : (t+1)*size]
}

// At returns the pixel value at (t, y, x).
func (s *Uint16) At(t, y, x int) uint16 {
	return s.Data[(t*s.Height+y)*s.Width+x]
}

// Set stores v at (t, y, x).
func (s *Uint16) Set(t, y, x int, v uint16) {
	s.Data[(t*s.Height+y)*s.Width+x] = v
}

func (s *Uint16) shape() (int, int, int) { return s.Frames, s.Height, s.Width }

// Float64 is a (frames, height, width) stack of float64 planes, used for
// estimated background surfaces.
type Float64 struct {
	Frames int
	Height int
	Width  int
	Data   []float64
}

// NewFloat64 allocates a zeroed stack with the given shape.
func NewFloat64(frames, height, width int) *Float64 {
	return &Float64{
		Frames: frames,
		Height: height,
		Width:  width,
		Data:   make([]float64, frames*height*width),
	}
}

// Frame returns the plane for time index t as a view into the stack.
func (s *Float64) Frame(t int) []float64 {
	size := s.Height * s.Width
	return s.Data[t*size : (t+1)*size]
}

// At returns the value at (t, y, x).
func (s *Float64) At(t, y, x int) float64 {
	return s.Data[(t*s.Height+y)*s.Width+x]
}

// Set stores v at (t, y, x).
func (s *Float64) Set(t, y, x int, v float64) {
	s.Data[(t*s.Height+y)*s.Width+x] = v
}

func validShape(frames, height, width int) error {
	if frames <= 0 || height <= 0 || width <= 0 {
		return fmt.Errorf("invalid stack shape (%d, %d, %d)", frames, height, width)
	}
	return nil
}
