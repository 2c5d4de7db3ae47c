package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/neu-labs/neu/internal/logging"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// newFileServer serves each path's body from files and counts requests.
func newFileServer(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	hits := new(atomic.Int64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func TestDownload(t *testing.T) {
	data := makeTarGz(t, []testEntry{{Name: "neu", Body: "#!/bin/sh\necho test"}})
	server, _ := newFileServer(t, map[string][]byte{"/neu.tar.gz": data})

	var progress strings.Builder
	u := New(WithHTTPClient(server.Client()), WithTempDir(t.TempDir()), WithProgress(&progress))
	release := &Release{TagName: "v1.1.0", ArtifactURL: server.URL + "/neu.tar.gz", ArtifactName: "neu.tar.gz"}

	art, err := u.Download(context.Background(), release)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer art.Close()

	got, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Error("downloaded bytes differ from served bytes")
	}
	if art.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", art.Size, len(data))
	}
	if art.SHA256 != sha256Hex(data) {
		t.Errorf("SHA256 = %s, want %s", art.SHA256, sha256Hex(data))
	}
	if !strings.Contains(progress.String(), "100%") {
		t.Errorf("progress output %q does not reach 100%%", progress.String())
	}
}

func TestArtifactClose(t *testing.T) {
	server, _ := newFileServer(t, map[string][]byte{"/a.zip": []byte("PK\x03\x04rest")})
	u := New(WithHTTPClient(server.Client()), WithTempDir(t.TempDir()))

	art, err := u.Download(context.Background(), &Release{ArtifactURL: server.URL + "/a.zip", ArtifactName: "a.zip"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	dir := art.Dir

	if err := art.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("artifact directory still exists after Close: %v", err)
	}
	if err := art.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestDownload_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}, ErrTransport},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, ErrTransport},
		{"truncated body", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "1000")
			w.Write([]byte("short"))
		}, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			tempDir := t.TempDir()
			u := New(WithHTTPClient(server.Client()), WithTempDir(tempDir))

			_, err := u.Download(context.Background(), &Release{ArtifactURL: server.URL + "/x", ArtifactName: "x"})
			if !errors.Is(err, tt.kind) {
				t.Fatalf("Download error = %v, want %v", err, tt.kind)
			}
			if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
				t.Errorf("temp dir not cleaned up: %d entries left", len(entries))
			}
		})
	}
}

func TestDownload_StorageFailure(t *testing.T) {
	server, _ := newFileServer(t, map[string][]byte{"/x": []byte("data")})
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	u := New(WithHTTPClient(server.Client()), WithTempDir(missing))

	_, err := u.Download(context.Background(), &Release{ArtifactURL: server.URL + "/x", ArtifactName: "x"})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Download error = %v, want ErrStorage", err)
	}
}

func TestDownload_SendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("data"))
	}))
	defer server.Close()

	u := New(WithHTTPClient(server.Client()), WithTempDir(t.TempDir()), WithUserAgent("neu-test/1.0"))
	art, err := u.Download(context.Background(), &Release{ArtifactURL: server.URL + "/x", ArtifactName: "x"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	art.Close()

	if gotUA != "neu-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "neu-test/1.0")
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("archive bytes")
	good := sha256Hex(data)
	other := sha256Hex([]byte("something else"))

	tests := []struct {
		name      string
		checksums string
		require   bool
		noURL     bool
		kind      error
	}{
		{"match", good + "  neu.tar.gz\n" + other + "  other.zip\n", false, false, nil},
		{"binary mode marker", good + " *neu.tar.gz\n", false, false, nil},
		{"single bare digest", good + "\n", false, false, nil},
		{"uppercase digest", strings.ToUpper(good) + "  neu.tar.gz\n", false, false, nil},
		{"mismatch", other + "  neu.tar.gz\n", false, false, ErrIntegrity},
		{"not listed optional", good + "  other.zip\n", false, false, nil},
		{"not listed required", good + "  other.zip\n", true, false, ErrIntegrity},
		{"mismatch required", other + "  neu.tar.gz\n", true, false, ErrIntegrity},
		{"missing optional", "", false, true, nil},
		{"missing required", "", true, true, ErrIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newFileServer(t, map[string][]byte{
				"/neu.tar.gz":    data,
				"/checksums.txt": []byte(tt.checksums),
			})
			u := New(
				WithHTTPClient(server.Client()),
				WithTempDir(t.TempDir()),
				WithRequireChecksum(tt.require),
				WithLogger(logging.Discard()),
			)
			release := &Release{TagName: "v1.0.0", ArtifactURL: server.URL + "/neu.tar.gz", ArtifactName: "neu.tar.gz"}
			if !tt.noURL {
				release.ChecksumURL = server.URL + "/checksums.txt"
			}

			art, err := u.Download(context.Background(), release)
			if err != nil {
				t.Fatalf("Download failed: %v", err)
			}
			defer art.Close()

			err = u.VerifyChecksum(context.Background(), release, art)
			if tt.kind == nil && err != nil {
				t.Fatalf("VerifyChecksum failed: %v", err)
			}
			if tt.kind != nil && !errors.Is(err, tt.kind) {
				t.Fatalf("VerifyChecksum error = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestVerifyChecksum_Unreachable(t *testing.T) {
	server, _ := newFileServer(t, map[string][]byte{"/neu.tar.gz": []byte("data")})
	u := New(WithHTTPClient(server.Client()), WithTempDir(t.TempDir()))
	release := &Release{
		ArtifactURL:  server.URL + "/neu.tar.gz",
		ArtifactName: "neu.tar.gz",
		ChecksumURL:  server.URL + "/missing.txt",
	}

	art, err := u.Download(context.Background(), release)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer art.Close()

	err = u.VerifyChecksum(context.Background(), release, art)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("VerifyChecksum error = %v, want ErrTransport", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageVerify {
		t.Errorf("stage = %v, want %v", se, StageVerify)
	}
}

func TestLookupChecksum(t *testing.T) {
	content := "aaa  one.tar.gz\nbbb *two.zip\n\n"
	if got, ok := lookupChecksum(content, "two.zip"); !ok || got != "bbb" {
		t.Errorf("lookupChecksum(two.zip) = %q, %v", got, ok)
	}
	if _, ok := lookupChecksum(content, "three.zip"); ok {
		t.Error("expected no digest for unlisted name")
	}
	if _, ok := lookupChecksum("aaa\nbbb\n", "x"); ok {
		t.Error("expected no digest when several bare digests are ambiguous")
	}
}
