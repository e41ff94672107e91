package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"cytopipe/internal/acquisition"
	"cytopipe/internal/paths"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAcquisition verifies the acquisition directory holds a valid
// metadata sidecar and that its first source stack is readable.
func CheckAcquisition(dir string) Result {
	const name = "Acquisition"

	if err := unix.Access(dir, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", dir, err)}
	}
	meta, err := acquisition.LoadMetadata(dir)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: metadata: %v)", dir, err)}
	}
	first := paths.RawStack(dir, 0, 0)
	if err := unix.Access(first, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: first stack unreadable: %v)", first, err)}
	}
	return Result{Name: name, Passed: true,
		Detail: fmt.Sprintf("%s (%d fovs, %d channels, %d frames)", meta.Name, meta.FOVs, meta.Channels, meta.Frames)}
}

// CheckFreeDiskSpace verifies the filesystem holding path has at least
// minGiB of free space. A zero minimum disables the check.
func CheckFreeDiskSpace(path string, minGiB int) Result {
	const name = "Free disk space"

	if minGiB <= 0 {
		return Result{Name: name, Passed: true, Detail: "minimum disabled"}
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	freeGiB := float64(fs.Bavail) * float64(fs.Bsize) / (1 << 30)
	if freeGiB < float64(minGiB) {
		return Result{Name: name, Detail: fmt.Sprintf("%.1f GiB free, need %d GiB", freeGiB, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%.1f GiB free", freeGiB)}
}
