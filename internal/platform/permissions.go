package platform

import (
	"io/fs"
	"os"
	"runtime"
)

// Chmod applies the permission bits an extracted file or installation root
// should carry. Windows has no Unix permission bits, so it does nothing
// there.
func Chmod(path string, mode fs.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, mode.Perm())
}

// PermOr returns the permission bits of the file at path, or fallback when
// it does not exist. An installation swapped in for path keeps the mode of
// the tree it replaces.
func PermOr(path string, fallback fs.FileMode) fs.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return fallback
}
