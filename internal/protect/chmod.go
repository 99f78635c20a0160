package protect

import (
	"os"
	"runtime"
)

// chmod sets permission bits. Windows has no directory permission bits, so
// directories are skipped there; files map to the read-only attribute.
func chmod(path string, mode os.FileMode, isDir bool) error {
	if runtime.GOOS == "windows" && isDir {
		return nil
	}
	return os.Chmod(path, mode)
}
