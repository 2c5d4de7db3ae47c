package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/neu-labs/neu/internal/platform"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// extractArchive unpacks a zip or gzip-compressed tar into destDir. The
// format is detected from the file's leading bytes, since zipball URLs
// carry no extension. Unreadable archives and entries that would escape
// destDir wrap ErrCorrupt; local write failures wrap ErrFilesystem.
func extractArchive(archivePath, destDir string) error {
	head, err := readHead(archivePath, 4)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("opening archive: %w", err))
	}

	var extract func(archivePath, destDir string) error
	switch {
	case bytes.HasPrefix(head, zipMagic):
		extract = extractZip
	case bytes.HasPrefix(head, gzipMagic):
		extract = extractTarGz
	default:
		return stageErr(StageInstall, ErrCorrupt, errors.New("unsupported archive format"))
	}

	if err := makeDir(destDir); err != nil {
		return err
	}
	if err := extract(archivePath, destDir); err != nil {
		return err
	}
	return verifyLinks(destDir)
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("opening zip archive: %w", err))
	}
	defer r.Close()

	if len(r.File) == 0 {
		return stageErr(StageInstall, ErrCorrupt, errors.New("archive is empty"))
	}

	for _, f := range r.File {
		if err := extractZipEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, destDir string) error {
	target, err := platform.ConfinedJoin(destDir, f.Name)
	if err != nil {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("zip entry: %w", err))
	}
	mode := f.Mode()

	rc, err := f.Open()
	if err != nil {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("opening zip entry %s: %w", f.Name, err))
	}
	defer rc.Close()

	switch {
	case mode.IsDir():
		if err := checkResolved(destDir, target, f.Name); err != nil {
			return err
		}
		return makeDir(target)
	case mode&fs.ModeSymlink != 0:
		linkTarget, err := io.ReadAll(rc)
		if err != nil {
			return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("reading zip entry %s: %w", f.Name, err))
		}
		if err := checkResolved(destDir, filepath.Dir(target), f.Name); err != nil {
			return err
		}
		return writeSymlink(destDir, target, string(linkTarget))
	default:
		if err := checkResolved(destDir, target, f.Name); err != nil {
			return err
		}
		return writeFile(target, rc, mode.Perm(), f.Name)
	}
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("opening archive: %w", err))
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("creating gzip reader: %w", err))
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	entries := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("reading tar entry: %w", err))
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg, tar.TypeSymlink:
		default:
			// Global pax headers, hard links and devices carry no content
			// an installation needs.
			continue
		}

		target, err := platform.ConfinedJoin(destDir, hdr.Name)
		if err != nil {
			return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("tar entry: %w", err))
		}
		entries++

		check := target
		if hdr.Typeflag == tar.TypeSymlink {
			check = filepath.Dir(target)
		}
		if err := checkResolved(destDir, check, hdr.Name); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = makeDir(target)
		case tar.TypeSymlink:
			err = writeSymlink(destDir, target, hdr.Linkname)
		default:
			err = writeFile(target, tr, fs.FileMode(hdr.Mode).Perm(), hdr.Name)
		}
		if err != nil {
			return err
		}
	}

	if entries == 0 {
		return stageErr(StageInstall, ErrCorrupt, errors.New("archive is empty"))
	}
	return nil
}

// checkResolved fails when path, followed through the symlinks extracted
// so far, leaves destDir.
func checkResolved(destDir, path, entryName string) error {
	ok, err := platform.ResolvesInside(destDir, path)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("checking %s: %w", entryName, err))
	}
	if !ok {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("entry %s resolves outside the archive", entryName))
	}
	return nil
}

// verifyLinks fails when any symlink under dir leaves it, whether by its
// written target or once resolved, or dangles.
func verifyLinks(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("walking %s: %w", dir, err))
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		target, err := os.Readlink(path)
		if err != nil {
			return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("reading symlink %s: %w", rel, err))
		}
		if !platform.LinkStaysInside(dir, path, target) {
			return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("symlink %s points outside the archive", filepath.ToSlash(rel)))
		}
		return checkResolved(dir, path, filepath.ToSlash(rel))
	})
}

func makeDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("creating directory: %w", err))
	}
	return nil
}

func writeFile(target string, src io.Reader, perm fs.FileMode, entryName string) error {
	if err := makeDir(filepath.Dir(target)); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("creating %s: %w", entryName, err))
	}
	defer out.Close()

	_, readErr, writeErr := pump(out, src, nil)
	if writeErr != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("writing %s: %w", entryName, writeErr))
	}
	if readErr != nil {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("reading %s: %w", entryName, readErr))
	}
	if err := out.Close(); err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("closing %s: %w", entryName, err))
	}
	return platform.Chmod(target, perm)
}

func writeSymlink(destDir, link, target string) error {
	if !platform.LinkStaysInside(destDir, link, target) {
		return stageErr(StageInstall, ErrCorrupt, fmt.Errorf("symlink %s points outside the archive", filepath.Base(link)))
	}
	if err := makeDir(filepath.Dir(link)); err != nil {
		return err
	}
	if err := platform.CreateSymlink(target, link); err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("creating symlink: %w", err))
	}
	return nil
}
