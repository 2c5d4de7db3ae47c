package updater

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neu-labs/neu/internal/platform"
)

// Install unpacks the artifact and swaps it in as root.
//
// The archive is extracted into a staging directory beside root. A single
// top-level directory (the layout of GitHub zipballs) is hoisted. Then root
// is renamed to its previous-version path and the staged tree renamed into
// root. root is left untouched on every failure, and the replaced tree is
// kept for Rollback.
func Install(art *Artifact, root string) error {
	if art == nil || art.Path == "" {
		return stageErr(StageInstall, ErrCorrupt, errors.New("no artifact to install"))
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("resolving root: %w", err))
	}
	parent := filepath.Dir(root)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("creating parent directory: %w", err))
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(root)+".staging-*")
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("creating staging directory: %w", err))
	}
	defer os.RemoveAll(staging)

	if err := extractArchive(art.Path, staging); err != nil {
		return err
	}

	tree, err := hoistSingleDir(staging)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, err)
	}
	if tree != staging {
		if err := verifyLinks(tree); err != nil {
			return err
		}
	}
	if err := platform.Chmod(tree, platform.PermOr(root, 0755)); err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("setting root permissions: %w", err))
	}

	return swapIn(tree, root, PreviousPath(root))
}

// Rollback swaps root with the tree kept by the last Install. Rolling back
// twice restores the newer tree.
func Rollback(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	prev := PreviousPath(root)
	if _, err := os.Stat(prev); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no previous installation at %s", prev)
		}
		return fmt.Errorf("checking previous installation: %w", err)
	}

	parked := filepath.Join(filepath.Dir(root), "."+filepath.Base(root)+".rollback")
	if err := os.RemoveAll(parked); err != nil {
		return fmt.Errorf("clearing %s: %w", parked, err)
	}
	if err := swapIn(prev, root, parked); err != nil {
		return err
	}
	if err := os.Rename(parked, prev); err != nil {
		return fmt.Errorf("keeping replaced tree: %w", err)
	}
	return nil
}

// PreviousPath is where Install keeps the tree it replaced.
func PreviousPath(root string) string {
	return filepath.Join(filepath.Dir(root), "."+filepath.Base(root)+".previous")
}

// swapIn moves tree into root, parking any existing root at backup. If the
// second rename fails, the parked root is moved back.
func swapIn(tree, root, backup string) error {
	parked := false
	if _, err := os.Lstat(root); err == nil {
		if err := os.RemoveAll(backup); err != nil {
			return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("clearing %s: %w", backup, err))
		}
		if err := os.Rename(root, backup); err != nil {
			return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("moving current installation aside: %w", err))
		}
		parked = true
	} else if !os.IsNotExist(err) {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("checking root: %w", err))
	}

	if err := os.Rename(tree, root); err != nil {
		if parked {
			if rerr := os.Rename(backup, root); rerr != nil {
				return stageErr(StageInstall, ErrFilesystem,
					fmt.Errorf("moving new installation into place: %w (restore failed: %v)", err, rerr))
			}
		}
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("moving new installation into place: %w", err))
	}
	return nil
}

// hoistSingleDir returns the only child of dir when that child is a
// directory, and dir itself otherwise.
func hoistSingleDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading staging directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
