package stack

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// NumPy .npy version 1.0. Little-endian payloads, C order, 3-D shapes only.
const (
	npyMagic     = "\x93NUMPY"
	descrUint16  = "<u2"
	descrFloat64 = "<f8"

	// partialSuffix marks files still being written. Readers and the
	// skip-if-exists predicate only ever see the final name, which appears
	// atomically via rename.
	partialSuffix = ".partial"
)

func npyHeader(descr string, frames, height, width int) []byte {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d, %d), }",
		descr, frames, height, width)
	// Total header (magic + version + length word + dict) pads to a
	// 64-byte boundary with spaces and terminates with a newline.
	base := len(npyMagic) + 2 + 2
	total := base + len(dict) + 1
	if pad := total % 64; pad != 0 {
		total += 64 - pad
	}
	padded := dict + strings.Repeat(" ", total-base-len(dict)-1) + "\n"

	buf := make([]byte, 0, total)
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(padded)))
	buf = append(buf, padded...)
	return buf
}

func parseNpyHeader(r io.Reader) (descr string, frames, height, width int, err error) {
	head := make([]byte, 10)
	if _, err = io.ReadFull(r, head); err != nil {
		return "", 0, 0, 0, fmt.Errorf("read npy preamble: %w", err)
	}
	if string(head[:6]) != npyMagic {
		return "", 0, 0, 0, fmt.Errorf("not an npy file")
	}
	if head[6] != 1 {
		return "", 0, 0, 0, fmt.Errorf("unsupported npy version %d.%d", head[6], head[7])
	}
	dictLen := int(binary.LittleEndian.Uint16(head[8:10]))
	dictRaw := make([]byte, dictLen)
	if _, err = io.ReadFull(r, dictRaw); err != nil {
		return "", 0, 0, 0, fmt.Errorf("read npy header: %w", err)
	}
	dict := string(dictRaw)

	descr, err = dictString(dict, "descr")
	if err != nil {
		return "", 0, 0, 0, err
	}
	if strings.Contains(dict, "'fortran_order': True") {
		return "", 0, 0, 0, fmt.Errorf("fortran-order npy arrays are not supported")
	}
	shape, err := dictShape(dict)
	if err != nil {
		return "", 0, 0, 0, err
	}
	if len(shape) != 3 {
		return "", 0, 0, 0, fmt.Errorf("expected a 3-d array, got shape %v", shape)
	}
	return descr, shape[0], shape[1], shape[2], nil
}

func dictString(dict, key string) (string, error) {
	marker := "'" + key + "':"
	idx := strings.Index(dict, marker)
	if idx < 0 {
		return "", fmt.Errorf("npy header missing %q", key)
	}
	rest := dict[idx+len(marker):]
	start := strings.IndexByte(rest, '\'')
	if start < 0 {
		return "", fmt.Errorf("npy header malformed at %q", key)
	}
	end := strings.IndexByte(rest[start+1:], '\'')
	if end < 0 {
		return "", fmt.Errorf("npy header malformed at %q", key)
	}
	return rest[start+1 : start+1+end], nil
}

func dictShape(dict string) ([]int, error) {
	idx := strings.Index(dict, "'shape':")
	if idx < 0 {
		return nil, fmt.Errorf("npy header missing shape")
	}
	rest := dict[idx:]
	open := strings.IndexByte(rest, '(')
	closing := strings.IndexByte(rest, ')')
	if open < 0 || closing < 0 || closing < open {
		return nil, fmt.Errorf("npy header malformed shape")
	}
	var shape []int
	for _, part := range strings.Split(rest[open+1:closing], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("npy header shape element %q: %w", part, err)
		}
		shape = append(shape, n)
	}
	return shape, nil
}

// WriteUint16 persists the stack at path. The file appears atomically: data
// is written to a sibling partial file and renamed into place.
func WriteUint16(path string, s *Uint16) error {
	if err := validShape(s.shape()); err != nil {
		return err
	}
	return writeAtomic(path, func(w *bufio.Writer) error {
		if _, err := w.Write(npyHeader(descrUint16, s.Frames, s.Height, s.Width)); err != nil {
			return err
		}
		buf := make([]byte, s.Height*s.Width*2)
		for t := 0; t < s.Frames; t++ {
			encodeUint16(buf, s.Frame(t))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFloat64 persists the stack at path, atomically as for WriteUint16.
func WriteFloat64(path string, s *Float64) error {
	if err := validShape(s.Frames, s.Height, s.Width); err != nil {
		return err
	}
	return writeAtomic(path, func(w *bufio.Writer) error {
		if _, err := w.Write(npyHeader(descrFloat64, s.Frames, s.Height, s.Width)); err != nil {
			return err
		}
		buf := make([]byte, s.Height*s.Width*8)
		for t := 0; t < s.Frames; t++ {
			encodeFloat64(buf, s.Frame(t))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeAtomic(path string, fill func(w *bufio.Writer) error) error {
	partial := path + partialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if err := fill(w); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

// ReadUint16 loads a uint16 stack written by WriteUint16 or a FrameWriter.
func ReadUint16(path string) (*Uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	descr, frames, height, width, err := parseNpyHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if descr != descrUint16 {
		return nil, fmt.Errorf("%s: expected dtype %s, got %s", path, descrUint16, descr)
	}
	s := NewUint16(frames, height, width)
	buf := make([]byte, height*width*2)
	for t := 0; t < frames; t++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%s: read frame %d: %w", path, t, err)
		}
		decodeUint16(s.Frame(t), buf)
	}
	return s, nil
}

// ReadFloat64 loads a float64 stack written by WriteFloat64.
func ReadFloat64(path string) (*Float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	descr, frames, height, width, err := parseNpyHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if descr != descrFloat64 {
		return nil, fmt.Errorf("%s: expected dtype %s, got %s", path, descrFloat64, descr)
	}
	s := NewFloat64(frames, height, width)
	buf := make([]byte, height*width*8)
	for t := 0; t < frames; t++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%s: read frame %d: %w", path, t, err)
		}
		decodeFloat64(s.Frame(t), buf)
	}
	return s, nil
}

func encodeUint16(dst []byte, src []uint16) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], v)
	}
}

func decodeUint16(dst []uint16, src []byte) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint16(src[i*2:])
	}
}

func encodeFloat64(dst []byte, src []float64) {
	for i, v := range src {
		binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
	}
}

func decodeFloat64(dst []float64, src []byte) {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
	}
}
