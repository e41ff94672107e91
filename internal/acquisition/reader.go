package acquisition

import (
	"fmt"
	"sync"

	"cytopipe/internal/paths"
	"cytopipe/internal/stack"
)

// FrameReader returns individual planes from the source acquisition.
type FrameReader interface {
	Metadata() *Metadata
	// ReadPlane returns the (fov, channel, frame) plane as height*width
	// uint16 pixels. The returned slice is only valid until the next call.
	ReadPlane(fov, channel, frame int) ([]uint16, error)
	Close() error
}

// StackDir reads planes out of per-(FOV, channel) npy stacks in a directory.
// Frame copy walks planes of one stack sequentially, so the most recently
// loaded stack is kept until a different (FOV, channel) is requested.
type StackDir struct {
	dir  string
	meta *Metadata

	mu      sync.Mutex
	curFOV  int
	curCh   int
	current *stack.Uint16
}

// Open loads the metadata sidecar and prepares a reader over dir.
func Open(dir string) (*StackDir, error) {
	meta, err := LoadMetadata(dir)
	if err != nil {
		return nil, err
	}
	return &StackDir{dir: dir, meta: meta, curFOV: -1, curCh: -1}, nil
}

// Metadata implements FrameReader.
func (r *StackDir) Metadata() *Metadata {
	return r.meta
}

// ReadPlane implements FrameReader.
func (r *StackDir) ReadPlane(fov, channel, frame int) ([]uint16, error) {
	if fov < 0 || fov >= r.meta.FOVs {
		return nil, fmt.Errorf("fov %d out of range [0, %d)", fov, r.meta.FOVs)
	}
	if channel < 0 || channel >= r.meta.Channels {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", channel, r.meta.Channels)
	}
	if frame < 0 || frame >= r.meta.Frames {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", frame, r.meta.Frames)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.curFOV != fov || r.curCh != channel {
		s, err := stack.ReadUint16(paths.RawStack(r.dir, fov, channel))
		if err != nil {
			return nil, fmt.Errorf("load source stack fov=%d channel=%d: %w", fov, channel, err)
		}
		if s.Frames != r.meta.Frames || s.Height != r.meta.Height || s.Width != r.meta.Width {
			return nil, fmt.Errorf("source stack fov=%d channel=%d has shape (%d, %d, %d), metadata says (%d, %d, %d)",
				fov, channel, s.Frames, s.Height, s.Width, r.meta.Frames, r.meta.Height, r.meta.Width)
		}
		r.current = s
		r.curFOV = fov
		r.curCh = channel
	}
	return r.current.Frame(frame), nil
}

// Close releases the cached stack.
func (r *StackDir) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	return nil
}
