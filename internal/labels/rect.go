// Package labels holds the shared helpers for labeled arrays: connected
// components, per-label regions and bounding boxes, and the binary
// morphology used by segmentation and mask extraction. A labeled frame is a
// height*width slice of uint16 where 0 is background and each positive
// value denotes one object.
package labels

// Rect is a half-open pixel rectangle [MinX, MaxX) x [MinY, MaxY).
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Width returns the rectangle width in pixels.
func (r Rect) Width() int { return r.MaxX - r.MinX }

// Height returns the rectangle height in pixels.
func (r Rect) Height() int { return r.MaxY - r.MinY }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }

// Pad expands the rectangle by margin pixels on each side, clipped to a
// height x width image.
func (r Rect) Pad(margin, height, width int) Rect {
	out := Rect{
		MinX: r.MinX - margin,
		MinY: r.MinY - margin,
		MaxX: r.MaxX + margin,
		MaxY: r.MaxY + margin,
	}
	if out.MinX < 0 {
		out.MinX = 0
	}
	if out.MinY < 0 {
		out.MinY = 0
	}
	if out.MaxX > width {
		out.MaxX = width
	}
	if out.MaxY > height {
		out.MaxY = height
	}
	return out
}

// Union returns the smallest rectangle containing both r and other.
// An empty rectangle is the identity.
func (r Rect) Union(other Rect) Rect {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	out := r
	if other.MinX < out.MinX {
		out.MinX = other.MinX
	}
	if other.MinY < out.MinY {
		out.MinY = other.MinY
	}
	if other.MaxX > out.MaxX {
		out.MaxX = other.MaxX
	}
	if other.MaxY > out.MaxY {
		out.MaxY = other.MaxY
	}
	return out
}
