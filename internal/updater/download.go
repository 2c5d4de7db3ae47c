package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is a downloaded release archive in a private temp directory.
// The cycle that created it owns it and must Close it.
type Artifact struct {
	Dir    string
	Path   string
	Name   string
	Size   int64
	SHA256 string
}

// Close removes the artifact's temp directory. It is safe to call more than
// once; the returned error reports a failed removal.
func (a *Artifact) Close() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	err := os.RemoveAll(a.Dir)
	a.Dir = ""
	if err != nil {
		return fmt.Errorf("removing artifact directory: %w", err)
	}
	return nil
}

// Download streams the release's artifact into a new temp directory,
// hashing it on the way. Network failures wrap ErrTransport and local write
// failures wrap ErrStorage; on either, nothing is left behind.
func (u *Updater) Download(ctx context.Context, release *Release) (art *Artifact, err error) {
	if release == nil || release.ArtifactURL == "" {
		return nil, stageErr(StageDownload, ErrNoRelease, errors.New("release has no artifact URL"))
	}

	dir, err := os.MkdirTemp(u.tempDir, "neu-artifact-*")
	if err != nil {
		return nil, stageErr(StageDownload, ErrStorage, fmt.Errorf("creating temp directory: %w", err))
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	name := release.ArtifactName
	if name == "" {
		name = "artifact"
	}
	destPath := filepath.Join(dir, filepath.Base(name))

	resp, err := u.get(ctx, release.ArtifactURL, "application/octet-stream")
	if err != nil {
		return nil, stageErr(StageDownload, ErrTransport, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return nil, stageErr(StageDownload, ErrStorage, fmt.Errorf("creating download file: %w", err))
	}
	defer f.Close()

	h := sha256.New()
	p := u.newProgress(resp.ContentLength)
	n, readErr, writeErr := pump(io.MultiWriter(f, h), resp.Body, p.add)
	p.done()
	if writeErr != nil {
		return nil, stageErr(StageDownload, ErrStorage, fmt.Errorf("writing download: %w", writeErr))
	}
	if readErr != nil {
		return nil, stageErr(StageDownload, ErrTransport, fmt.Errorf("reading download stream: %w", readErr))
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return nil, stageErr(StageDownload, ErrTransport,
			fmt.Errorf("download truncated: got %d of %d bytes", n, resp.ContentLength))
	}
	if err := f.Close(); err != nil {
		return nil, stageErr(StageDownload, ErrStorage, fmt.Errorf("closing download file: %w", err))
	}

	return &Artifact{
		Dir:    dir,
		Path:   destPath,
		Name:   name,
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// VerifyChecksum compares the artifact's digest with the checksum the
// release publishes. A release without a checksum file, or whose checksum
// file does not list the artifact, passes unless the Updater requires a
// checksum. A listed digest must match.
func (u *Updater) VerifyChecksum(ctx context.Context, release *Release, art *Artifact) error {
	var expected string
	if release.ChecksumURL != "" {
		body, err := u.getBytes(ctx, release.ChecksumURL, "")
		if err != nil {
			return stageErr(StageVerify, ErrTransport, fmt.Errorf("downloading checksums: %w", err))
		}
		expected, _ = lookupChecksum(string(body), art.Name)
	}

	if expected == "" {
		if u.requireChecksum {
			return stageErr(StageVerify, ErrIntegrity, fmt.Errorf("release %s publishes no checksum for %s", release.TagName, art.Name))
		}
		u.logger.Warn("release publishes no checksum for the artifact, skipping verification",
			"tag", release.TagName, "artifact", art.Name)
		return nil
	}

	if !strings.EqualFold(expected, art.SHA256) {
		return stageErr(StageVerify, ErrIntegrity,
			fmt.Errorf("checksum mismatch: expected %s, got %s", expected, art.SHA256))
	}
	return nil
}

// lookupChecksum finds name's digest in a checksum file. Lines are
// "<sha256>  <name>" (an optional "*" marks binary mode). A file holding a
// single bare digest applies to any name.
func lookupChecksum(content, name string) (string, bool) {
	var bare []string
	for _, line := range strings.Split(content, "\n") {
		parts := strings.Fields(line)
		switch len(parts) {
		case 1:
			bare = append(bare, parts[0])
		case 2:
			if strings.TrimPrefix(parts[1], "*") == name {
				return parts[0], true
			}
		}
	}
	if len(bare) == 1 {
		return bare[0], true
	}
	return "", false
}

// pump copies src to dst, reporting each chunk to onChunk, and keeps read
// and write failures apart so callers can classify them.
func pump(dst io.Writer, src io.Reader, onChunk func(int)) (n int64, readErr, writeErr error) {
	buf := make([]byte, 32*1024)
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			n += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return n, nil, werr
			}
			if onChunk != nil {
				onChunk(nr)
			}
		}
		if rerr == io.EOF {
			return n, nil, nil
		}
		if rerr != nil {
			return n, rerr, nil
		}
	}
}

// progress prints a percentage line while a download runs.
type progress struct {
	u          *Updater
	total      int64
	downloaded int64
	last       int
}

func (u *Updater) newProgress(total int64) *progress {
	return &progress{u: u, total: total, last: -1}
}

func (p *progress) add(n int) {
	p.downloaded += int64(n)
	if p.u.progress == nil || p.total <= 0 {
		return
	}
	percent := int(p.downloaded * 100 / p.total)
	if percent != p.last {
		printer.Fprintf(p.u.progress, "\rDownloading... %d%% (%d of %d bytes)", percent, p.downloaded, p.total)
		p.last = percent
	}
}

func (p *progress) done() {
	if p.u.progress == nil {
		return
	}
	if p.total > 0 {
		printer.Fprintln(p.u.progress)
		return
	}
	printer.Fprintf(p.u.progress, "Downloaded %d bytes\n", p.downloaded)
}
