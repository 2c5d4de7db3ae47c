package updater

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/neu-labs/neu/internal/branding"
)

// Target is an OS/architecture pair that neu release archives are built
// for.
type Target struct {
	OS   string
	Arch string
}

// HostTarget is the platform the running binary was built for.
func HostTarget() Target {
	return Target{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (t Target) String() string {
	return t.OS + "/" + t.Arch
}

// ArchiveName is the release archive GoReleaser publishes for t:
// neu_<os>_<arch>.tar.gz, or .zip on Windows.
func (t Target) ArchiveName() string {
	ext := ".tar.gz"
	if t.OS == "windows" {
		ext = ".zip"
	}
	return fmt.Sprintf("%s_%s_%s%s", branding.CLIName(), t.OS, t.Arch, ext)
}

// BinaryName is the executable's file name inside t's archive.
func (t Target) BinaryName() string {
	if t.OS == "windows" {
		return branding.CLIName() + ".exe"
	}
	return branding.CLIName()
}

// SelectAsset picks t's archive from a release's assets. The exact
// GoReleaser name wins; otherwise any archive whose name carries
// <os>_<arch> is taken, which covers names with an embedded version.
func (t Target) SelectAsset(assets []Asset) (*Asset, error) {
	expected := t.ArchiveName()
	for i := range assets {
		if assets[i].Name == expected {
			return &assets[i], nil
		}
	}

	pattern := t.OS + "_" + t.Arch
	for i := range assets {
		if strings.Contains(assets[i].Name, pattern) && isArchive(assets[i].Name) {
			return &assets[i], nil
		}
	}
	return nil, fmt.Errorf("release has no archive for %s (expected %s)", t, expected)
}

func isArchive(name string) bool {
	return strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz") || strings.HasSuffix(name, ".zip")
}
