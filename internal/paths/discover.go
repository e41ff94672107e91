package paths

import (
	"fmt"
	"os"
	"sort"
)

// ArtifactSet reports which artifacts exist on disk for one FOV. Channel
// maps are keyed by channel index.
type ArtifactSet struct {
	Frames       map[int]bool
	Segmentation map[int]bool
	Tracked      map[int]bool
	Background   map[int]bool
	Crops        bool
	Features     bool
}

// ListFOVs scans an output root for FOV directories and returns their
// indices in ascending order. A missing root is not an error; it simply has
// no FOVs yet.
func ListFOVs(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan output root: %w", err)
	}
	var fovs []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var fov int
		if _, err := fmt.Sscanf(entry.Name(), fovDirFormat, &fov); err != nil {
			continue
		}
		if fmt.Sprintf(fovDirFormat, fov) != entry.Name() {
			continue
		}
		fovs = append(fovs, fov)
	}
	sort.Ints(fovs)
	return fovs, nil
}

// Discover reports the artifacts present for one FOV. channels is the full
// set of channel indices worth probing (typically the configured PC and FL
// channels).
func Discover(root string, fov int, channels []int) ArtifactSet {
	set := ArtifactSet{
		Frames:       make(map[int]bool, len(channels)),
		Segmentation: make(map[int]bool, len(channels)),
		Tracked:      make(map[int]bool, len(channels)),
		Background:   make(map[int]bool, len(channels)),
	}
	for _, ch := range channels {
		set.Frames[ch] = Exists(Frames(root, fov, ch))
		set.Segmentation[ch] = Exists(Segmentation(root, fov, ch))
		set.Tracked[ch] = Exists(Tracked(root, fov, ch))
		set.Background[ch] = Exists(Background(root, fov, ch))
	}
	set.Crops = Exists(Crops(root, fov))
	set.Features = Exists(Features(root, fov))
	return set
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
