package platform

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// CreateSymlink creates link pointing to target. On Unix this is os.Symlink.
// On Windows it tries os.Symlink first (requires developer mode) and falls
// back to copying the target, which must already exist.
func CreateSymlink(target, link string) error {
	if runtime.GOOS != "windows" {
		return os.Symlink(target, link)
	}

	if err := os.Symlink(target, link); err == nil {
		return nil
	}

	if err := copyFileForSymlink(target, link); err != nil {
		return fmt.Errorf("symlink fallback (copy) failed: %w", err)
	}
	return nil
}

// copyFileForSymlink copies src to dst. Relative targets resolve against
// the directory containing dst.
func copyFileForSymlink(src, dst string) error {
	resolvedSrc := src
	if !filepath.IsAbs(src) {
		resolvedSrc = filepath.Join(filepath.Dir(dst), src)
	}

	in, err := os.Open(resolvedSrc)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
