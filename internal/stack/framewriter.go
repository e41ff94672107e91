package stack

import (
	"bufio"
	"fmt"
	"os"
)

// FrameWriter streams a uint16 stack to disk one frame at a time so a full
// acquisition never has to sit in memory. Data accumulates in a partial file;
// Close renames it into place once every frame has been written, and Abort
// discards it. Cancelling a copy therefore never leaves a file that the
// skip-if-exists predicate would mistake for a finished artifact.
type FrameWriter struct {
	path    string
	partial string
	f       *os.File
	w       *bufio.Writer
	frames  int
	height  int
	width   int
	written int
	buf     []byte
}

// NewFrameWriter opens a partial file at path and writes the npy header for
// the declared shape.
func NewFrameWriter(path string, frames, height, width int) (*FrameWriter, error) {
	if err := validShape(frames, height, width); err != nil {
		return nil, err
	}
	partial := path + partialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", partial, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if _, err := w.Write(npyHeader(descrUint16, frames, height, width)); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return &FrameWriter{
		path:    path,
		partial: partial,
		f:       f,
		w:       w,
		frames:  frames,
		height:  height,
		width:   width,
		buf:     make([]byte, height*width*2),
	}, nil
}

// WriteFrame appends one plane. The plane length must equal height*width.
func (fw *FrameWriter) WriteFrame(plane []uint16) error {
	if len(plane) != fw.height*fw.width {
		return fmt.Errorf("plane has %d pixels, want %d", len(plane), fw.height*fw.width)
	}
	if fw.written >= fw.frames {
		return fmt.Errorf("stack already holds %d frames", fw.frames)
	}
	encodeUint16(fw.buf, plane)
	if _, err := fw.w.Write(fw.buf); err != nil {
		return fmt.Errorf("write frame %d: %w", fw.written, err)
	}
	fw.written++
	return nil
}

// Close finalizes the stack. It fails (and removes the partial file) when
// fewer frames than declared were written.
func (fw *FrameWriter) Close() error {
	if fw.written != fw.frames {
		_ = fw.f.Close()
		_ = os.Remove(fw.partial)
		return fmt.Errorf("wrote %d of %d frames to %s", fw.written, fw.frames, fw.path)
	}
	if err := fw.w.Flush(); err != nil {
		_ = fw.f.Close()
		_ = os.Remove(fw.partial)
		return fmt.Errorf("flush %s: %w", fw.path, err)
	}
	if err := fw.f.Close(); err != nil {
		_ = os.Remove(fw.partial)
		return fmt.Errorf("close %s: %w", fw.path, err)
	}
	if err := os.Rename(fw.partial, fw.path); err != nil {
		_ = os.Remove(fw.partial)
		return fmt.Errorf("finalize %s: %w", fw.path, err)
	}
	return nil
}

// Abort discards the partial output. Safe to call after a failed Close.
func (fw *FrameWriter) Abort() {
	_ = fw.f.Close()
	_ = os.Remove(fw.partial)
}
