package platform

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ConfinedJoin joins an archive entry name onto dir and rejects names that
// would land outside dir (absolute paths, ".." traversal).
func ConfinedJoin(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("absolute path %q", name)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes destination", name)
	}
	return filepath.Join(dir, clean), nil
}

// LinkStaysInside reports whether a symlink at linkPath with the given
// target stays inside dir. The target is walked one element at a time as
// the OS would resolve it, and a target that passes through a symlink
// already on disk is refused.
func LinkStaysInside(dir, linkPath, target string) bool {
	if filepath.IsAbs(target) || filepath.VolumeName(target) != "" {
		return false
	}
	cur := filepath.Dir(linkPath)
	for _, part := range strings.Split(filepath.ToSlash(target), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
			if info, err := os.Lstat(cur); err == nil && info.Mode()&fs.ModeSymlink != 0 {
				return false
			}
		}
		if !within(dir, cur) {
			return false
		}
	}
	return true
}

// ResolvesInside reports whether path lies inside dir once every symlink
// on disk along it is followed. Trailing elements that do not exist yet
// are taken as written. A dangling symlink on the path counts as outside.
func ResolvesInside(dir, path string) (bool, error) {
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", dir, err)
	}

	existing, rest := filepath.Clean(path), ""
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return false, err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return within(realDir, filepath.Join(resolved, rest)), nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
