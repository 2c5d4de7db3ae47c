package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/selfupdate"
)

// verifyTimeout bounds the smoke test of a freshly installed binary.
const verifyTimeout = 5 * time.Second

// ExecutablePath returns the resolved path of the running binary.
func ExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// SelfUpdate replaces the binary at target with the build that release
// publishes for this platform. The replaced binary is restored when the new
// one fails to report the release's version.
func (u *Updater) SelfUpdate(ctx context.Context, release *Release, target string) error {
	host := HostTarget()
	asset, err := host.SelectAsset(release.Assets)
	if err != nil {
		return stageErr(StageFetch, ErrNoRelease, err)
	}

	rel := *release
	rel.ArtifactURL = asset.DownloadURL
	rel.ArtifactName = asset.Name

	art, err := u.Download(ctx, &rel)
	if err != nil {
		return err
	}
	defer func() {
		if err := art.Close(); err != nil {
			u.logger.Warn("removing downloaded artifact", "error", err)
		}
	}()

	if err := u.VerifyChecksum(ctx, &rel, art); err != nil {
		return err
	}

	extracted := filepath.Join(art.Dir, "extracted")
	if err := extractArchive(art.Path, extracted); err != nil {
		return err
	}
	binPath, err := findBinary(extracted, host.BinaryName())
	if err != nil {
		return stageErr(StageInstall, ErrCorrupt, err)
	}

	backup := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".previous")
	if err := applyBinary(binPath, target, backup); err != nil {
		return err
	}

	if err := VerifyBinary(ctx, target, release.TagName); err != nil {
		if rerr := applyBinary(backup, target, ""); rerr != nil {
			return stageErr(StageInstall, ErrFilesystem,
				fmt.Errorf("new binary failed verification (%v) and restoring the old one failed: %w", err, rerr))
		}
		os.Remove(backup)
		return stageErr(StageInstall, ErrIntegrity, fmt.Errorf("verification failed, rolled back: %w", err))
	}

	os.Remove(backup)
	return nil
}

// applyBinary swaps the file at src into target. With a non-empty backup
// the replaced binary is saved there.
func applyBinary(src, target, backup string) error {
	f, err := os.Open(src)
	if err != nil {
		return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("opening new binary: %w", err))
	}
	defer f.Close()

	err = selfupdate.Apply(f, selfupdate.Options{
		TargetPath:  target,
		OldSavePath: backup,
	})
	if err == nil {
		return nil
	}
	if rerr := selfupdate.RollbackError(err); rerr != nil {
		return stageErr(StageInstall, ErrFilesystem,
			fmt.Errorf("replacing binary: %v; restoring previous binary: %w", err, rerr))
	}
	return stageErr(StageInstall, ErrFilesystem, fmt.Errorf("replacing binary: %w", err))
}

func findBinary(dir, name string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("searching archive: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("archive does not contain %s", name)
	}
	return found, nil
}

// VerifyBinary executes the binary with "version --json" and checks that it
// reports expectedVersion. An empty expectedVersion only checks that the
// binary runs and prints version JSON.
func VerifyBinary(ctx context.Context, binaryPath, expectedVersion string) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, binaryPath, "version", "--json").Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("new binary timed out after %s", verifyTimeout)
	}
	if err != nil {
		return fmt.Errorf("new binary exited with error: %w", err)
	}

	var info map[string]string
	if err := json.Unmarshal(output, &info); err != nil {
		return fmt.Errorf("parsing version output: %w", err)
	}
	if expectedVersion == "" {
		return nil
	}
	if got := strings.TrimPrefix(info["version"], "v"); got != strings.TrimPrefix(expectedVersion, "v") {
		return fmt.Errorf("new binary reports version %q, expected %q", info["version"], expectedVersion)
	}
	return nil
}
