package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/neu-labs/neu/internal/logging"
)

func versionScript(version string) string {
	return "#!/bin/sh\necho '{\"version\": \"" + version + "\", \"commit\": \"abc\"}'\n"
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on Windows")
	}
}

func TestVerifyBinary(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	bin := filepath.Join(dir, "neu")
	writeScript(t, bin, versionScript("1.4.0"))

	tests := []struct {
		name     string
		expected string
		wantErr  bool
	}{
		{"matching", "1.4.0", false},
		{"v prefix", "v1.4.0", false},
		{"any version", "", false},
		{"mismatch", "1.5.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyBinary(context.Background(), bin, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyBinary(%q) error = %v, wantErr %v", tt.expected, err, tt.wantErr)
			}
		})
	}
}

func TestVerifyBinary_Failures(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	failing := filepath.Join(dir, "failing")
	writeScript(t, failing, "#!/bin/sh\nexit 3\n")
	if err := VerifyBinary(context.Background(), failing, ""); err == nil {
		t.Error("expected error for non-zero exit")
	}

	garbage := filepath.Join(dir, "garbage")
	writeScript(t, garbage, "#!/bin/sh\necho not json\n")
	if err := VerifyBinary(context.Background(), garbage, ""); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestSelfUpdate(t *testing.T) {
	skipWithoutShell(t)
	archive := makeTarGz(t, []testEntry{
		{Name: "README.md", Body: "docs"},
		{Name: HostTarget().BinaryName(), Body: versionScript("2.0.0"), Mode: 0755},
	})
	server, _ := newFileServer(t, map[string][]byte{"/" + HostTarget().ArchiveName(): archive})

	target := filepath.Join(t.TempDir(), "neu")
	writeScript(t, target, versionScript("1.0.0"))

	u := New(WithHTTPClient(server.Client()), WithTempDir(t.TempDir()), WithLogger(logging.Discard()))
	release := &Release{
		TagName: "v2.0.0",
		Assets:  []Asset{{Name: HostTarget().ArchiveName(), DownloadURL: server.URL + "/" + HostTarget().ArchiveName()}},
	}

	if err := u.SelfUpdate(context.Background(), release, target); err != nil {
		t.Fatalf("SelfUpdate failed: %v", err)
	}
	if err := VerifyBinary(context.Background(), target, "2.0.0"); err != nil {
		t.Errorf("installed binary: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(target), ".neu.previous")); !os.IsNotExist(err) {
		t.Errorf("backup left behind: %v", err)
	}
}

func TestSelfUpdate_RestoresOnBadBinary(t *testing.T) {
	skipWithoutShell(t)
	archive := makeTarGz(t, []testEntry{
		{Name: HostTarget().BinaryName(), Body: versionScript("1.9.9"), Mode: 0755},
	})
	server, _ := newFileServer(t, map[string][]byte{"/" + HostTarget().ArchiveName(): archive})

	target := filepath.Join(t.TempDir(), "neu")
	writeScript(t, target, versionScript("1.0.0"))

	u := New(WithHTTPClient(server.Client()), WithTempDir(t.TempDir()), WithLogger(logging.Discard()))
	release := &Release{
		TagName: "v2.0.0",
		Assets:  []Asset{{Name: HostTarget().ArchiveName(), DownloadURL: server.URL + "/" + HostTarget().ArchiveName()}},
	}

	err := u.SelfUpdate(context.Background(), release, target)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("SelfUpdate error = %v, want ErrIntegrity", err)
	}
	if err := VerifyBinary(context.Background(), target, "1.0.0"); err != nil {
		t.Errorf("old binary not restored: %v", err)
	}
}

func TestSelfUpdate_NoPlatformAsset(t *testing.T) {
	u := New(WithLogger(logging.Discard()))
	release := &Release{TagName: "v2.0.0", Assets: []Asset{{Name: "neu_plan9_mips.tar.gz", DownloadURL: "http://127.0.0.1:1/x"}}}

	err := u.SelfUpdate(context.Background(), release, filepath.Join(t.TempDir(), "neu"))
	if !errors.Is(err, ErrNoRelease) {
		t.Fatalf("SelfUpdate error = %v, want ErrNoRelease", err)
	}
}

func TestFindBinary(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "neu_1.0.0_linux_amd64", "bin")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "neu"), []byte("x"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := findBinary(dir, "neu")
	if err != nil {
		t.Fatalf("findBinary failed: %v", err)
	}
	if got != filepath.Join(nested, "neu") {
		t.Errorf("findBinary = %q", got)
	}
	if _, err := findBinary(dir, "missing"); err == nil {
		t.Error("expected error for missing binary")
	}
}
