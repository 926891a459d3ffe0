package dualcam

import (
	"os"
)

// TempDir returns either a temporary directory in /dev/shm (if it exists), or
// otherwise in the OS default temporary directory. Camera backends that run
// a child process use it as the drop point for frames.
func TempDir() (string, error) {
	// Frames are written and removed many times per second, keep them in
	// memory when possible. Check that /dev/shm exists first, we don't want
	// to create a directory in /dev when running as root.
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		dir, err := os.MkdirTemp("/dev/shm", "dualcam")
		if err == nil {
			return dir, nil
		}
	}
	return os.MkdirTemp("", "dualcam")
}
