package paths

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNamingIsDeterministic(t *testing.T) {
	root := "/data/out"
	cases := []struct {
		got  string
		want string
	}{
		{FOVDir(root, 7), "/data/out/fov_0007"},
		{Frames(root, 7, 0), "/data/out/fov_0007/frames_c00.npy"},
		{Segmentation(root, 0, 1), "/data/out/fov_0000/segmentation_c01.npy"},
		{Tracked(root, 12, 0), "/data/out/fov_0012/tracked_c00.npy"},
		{Background(root, 3, 2), "/data/out/fov_0003/background_c02.npy"},
		{Crops(root, 3), "/data/out/fov_0003/crops.gob"},
		{Features(root, 3), "/data/out/fov_0003/features.csv"},
		{RunConfig(root), "/data/out/cytopipe.toml"},
		{RunLog(root), "/data/out/runlog.db"},
	}
	for _, c := range cases {
		if c.got != filepath.FromSlash(c.want) {
			t.Errorf("got %q want %q", c.got, c.want)
		}
	}
}

func TestListFOVs(t *testing.T) {
	root := t.TempDir()
	for _, fov := range []int{3, 0, 11} {
		if err := os.MkdirAll(FOVDir(root, fov), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// Noise the scanner must ignore.
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "fov_0005"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	fovs, err := ListFOVs(root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(fovs, []int{0, 3, 11}) {
		t.Fatalf("unexpected FOVs: %v", fovs)
	}
}

func TestListFOVsMissingRoot(t *testing.T) {
	fovs, err := ListFOVs(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing root should not error: %v", err)
	}
	if len(fovs) != 0 {
		t.Fatalf("unexpected FOVs: %v", fovs)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(FOVDir(root, 2), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{Frames(root, 2, 0), Segmentation(root, 2, 0), Crops(root, 2)} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	set := Discover(root, 2, []int{0, 1})
	if !set.Frames[0] || set.Frames[1] {
		t.Fatalf("frames discovery wrong: %+v", set.Frames)
	}
	if !set.Segmentation[0] || set.Tracked[0] {
		t.Fatal("segmentation/tracked discovery wrong")
	}
	if !set.Crops || set.Features {
		t.Fatal("crops/features discovery wrong")
	}
}
