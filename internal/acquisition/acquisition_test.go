package acquisition

import (
	"strings"
	"testing"

	"cytopipe/internal/paths"
	"cytopipe/internal/stack"
)

func writeTestAcquisition(t *testing.T, dir string, meta Metadata) {
	t.Helper()
	if err := SaveMetadata(dir, &meta); err != nil {
		t.Fatalf("save metadata: %v", err)
	}
	for fov := 0; fov < meta.FOVs; fov++ {
		for ch := 0; ch < meta.Channels; ch++ {
			s := stack.NewUint16(meta.Frames, meta.Height, meta.Width)
			for i := range s.Data {
				s.Data[i] = uint16(fov*1000 + ch*100 + i%100)
			}
			if err := stack.WriteUint16(paths.RawStack(dir, fov, ch), s); err != nil {
				t.Fatalf("write raw stack: %v", err)
			}
		}
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := Metadata{Name: "exp01", Frames: 4, FOVs: 2, Channels: 2, Height: 8, Width: 8, DType: "uint16"}
	if err := SaveMetadata(dir, &want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadMetadata(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != want {
		t.Fatalf("metadata mismatch: got %+v want %+v", *got, want)
	}
}

func TestMetadataValidation(t *testing.T) {
	cases := []struct {
		name string
		meta Metadata
		want string
	}{
		{"no frames", Metadata{FOVs: 1, Channels: 1, Height: 4, Width: 4}, "frames"},
		{"no fovs", Metadata{Frames: 1, Channels: 1, Height: 4, Width: 4}, "fields of view"},
		{"bad dtype", Metadata{Frames: 1, FOVs: 1, Channels: 1, Height: 4, Width: 4, DType: "float32"}, "dtype"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.meta.Validate()
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error containing %q, got %v", c.want, err)
			}
		})
	}
}

func TestStackDirReadPlane(t *testing.T) {
	dir := t.TempDir()
	writeTestAcquisition(t, dir, Metadata{Frames: 3, FOVs: 2, Channels: 1, Height: 4, Width: 4})

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	plane, err := r.ReadPlane(1, 0, 2)
	if err != nil {
		t.Fatalf("read plane: %v", err)
	}
	if len(plane) != 16 {
		t.Fatalf("plane has %d pixels", len(plane))
	}
	if plane[0] != uint16(1000+2*16%100) {
		t.Fatalf("unexpected pixel value %d", plane[0])
	}

	if _, err := r.ReadPlane(5, 0, 0); err == nil {
		t.Fatal("expected error for out-of-range FOV")
	}
	if _, err := r.ReadPlane(0, 3, 0); err == nil {
		t.Fatal("expected error for out-of-range channel")
	}
}
