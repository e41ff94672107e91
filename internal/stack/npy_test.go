package stack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUint16RoundTrip(t *testing.T) {
	s := NewUint16(3, 4, 5)
	for i := range s.Data {
		s.Data[i] = uint16(i * 7)
	}
	path := filepath.Join(t.TempDir(), "labels.npy")
	if err := WriteUint16(path, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadUint16(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Frames != 3 || got.Height != 4 || got.Width != 5 {
		t.Fatalf("shape mismatch: (%d, %d, %d)", got.Frames, got.Height, got.Width)
	}
	for i := range s.Data {
		if got.Data[i] != s.Data[i] {
			t.Fatalf("pixel %d: got %d want %d", i, got.Data[i], s.Data[i])
		}
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	s := NewFloat64(2, 3, 3)
	for i := range s.Data {
		s.Data[i] = float64(i) * 0.25
	}
	path := filepath.Join(t.TempDir(), "background.npy")
	if err := WriteFloat64(path, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFloat64(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range s.Data {
		if got.Data[i] != s.Data[i] {
			t.Fatalf("value %d: got %v want %v", i, got.Data[i], s.Data[i])
		}
	}
}

func TestHeaderIsPaddedTo64(t *testing.T) {
	h := npyHeader(descrUint16, 10, 512, 512)
	if len(h)%64 != 0 {
		t.Fatalf("header length %d not a multiple of 64", len(h))
	}
	if h[len(h)-1] != '\n' {
		t.Fatal("header does not end with newline")
	}
}

func TestReadRejectsWrongDtype(t *testing.T) {
	s := NewFloat64(1, 2, 2)
	path := filepath.Join(t.TempDir(), "bg.npy")
	if err := WriteFloat64(path, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadUint16(path); err == nil || !strings.Contains(err.Error(), "dtype") {
		t.Fatalf("expected dtype error, got %v", err)
	}
}

func TestFrameWriterAtomicity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frames.npy")

	fw, err := NewFrameWriter(path, 2, 2, 2)
	if err != nil {
		t.Fatalf("new frame writer: %v", err)
	}
	if err := fw.WriteFrame([]uint16{1, 2, 3, 4}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("final path exists before Close")
	}
	fw.Abort()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("abort left files behind: %v", entries)
	}

	fw, err = NewFrameWriter(path, 2, 2, 2)
	if err != nil {
		t.Fatalf("new frame writer: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := fw.WriteFrame([]uint16{1, 2, 3, 4}); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := ReadUint16(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.At(1, 1, 1) != 4 {
		t.Fatalf("unexpected pixel: %d", got.At(1, 1, 1))
	}
}

func TestFrameWriterShortWriteFailsClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.npy")
	fw, err := NewFrameWriter(path, 3, 2, 2)
	if err != nil {
		t.Fatalf("new frame writer: %v", err)
	}
	if err := fw.WriteFrame([]uint16{1, 2, 3, 4}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := fw.Close(); err == nil {
		t.Fatal("expected error closing short stack")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("short stack produced a final file")
	}
}
