// Package paths is the single authority for mapping (output root, FOV,
// channel, artifact kind) to file locations. Every stage reads and writes
// through these helpers; nothing else in the repository builds artifact
// paths by hand.
package paths

import (
	"fmt"
	"path/filepath"
)

const (
	fovDirFormat     = "fov_%04d"
	framesFormat     = "frames_c%02d.npy"
	segmentationFmt  = "segmentation_c%02d.npy"
	trackedFormat    = "tracked_c%02d.npy"
	backgroundFormat = "background_c%02d.npy"
	cropsName        = "crops.gob"
	featuresName     = "features.csv"
	runConfigName    = "cytopipe.toml"
	runLogName       = "runlog.db"
	lockName         = ".cytopipe.lock"
	acquisitionName  = "acquisition.yaml"
	rawStackFormat   = "raw_f%04d_c%02d.npy"
)

// FOVDir returns the directory holding every artifact for one field of view.
func FOVDir(root string, fov int) string {
	return filepath.Join(root, fmt.Sprintf(fovDirFormat, fov))
}

// Frames returns the copied frame-stack path for a channel.
func Frames(root string, fov, channel int) string {
	return filepath.Join(FOVDir(root, fov), fmt.Sprintf(framesFormat, channel))
}

// Segmentation returns the labeled segmentation array path for a channel.
func Segmentation(root string, fov, channel int) string {
	return filepath.Join(FOVDir(root, fov), fmt.Sprintf(segmentationFmt, channel))
}

// Tracked returns the time-consistent labeled array path for a channel.
func Tracked(root string, fov, channel int) string {
	return filepath.Join(FOVDir(root, fov), fmt.Sprintf(trackedFormat, channel))
}

// Background returns the estimated background array path for a channel.
func Background(root string, fov, channel int) string {
	return filepath.Join(FOVDir(root, fov), fmt.Sprintf(backgroundFormat, channel))
}

// Crops returns the per-FOV crop container path.
func Crops(root string, fov int) string {
	return filepath.Join(FOVDir(root, fov), cropsName)
}

// Features returns the per-FOV feature table path.
func Features(root string, fov int) string {
	return filepath.Join(FOVDir(root, fov), featuresName)
}

// RunConfig returns the location of the persisted run configuration.
func RunConfig(root string) string {
	return filepath.Join(root, runConfigName)
}

// RunLog returns the location of the run provenance database.
func RunLog(root string) string {
	return filepath.Join(root, runLogName)
}

// LockFile returns the location of the single-run lock.
func LockFile(root string) string {
	return filepath.Join(root, lockName)
}

// AcquisitionMetadata returns the metadata sidecar inside an acquisition dir.
func AcquisitionMetadata(dir string) string {
	return filepath.Join(dir, acquisitionName)
}

// RawStack returns the source plane stack for (fov, channel) inside an
// acquisition directory.
func RawStack(dir string, fov, channel int) string {
	return filepath.Join(dir, fmt.Sprintf(rawStackFormat, fov, channel))
}
