//go:build integration

package integration_test

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	HomeDir  string // HOME, so ~/.neu/config.yaml is private to the test
	Root     string // NEU_INSTALL_ROOT
	StateDir string // NEU_STATE_DIR
}

// setupTestEnv creates isolated temp directories and sets environment
// variables so every neu operation is sandboxed. The env vars are restored
// after the test.
func setupTestEnv(t *testing.T, endpoint string) *testEnv {
	t.Helper()

	env := &testEnv{
		HomeDir:  t.TempDir(),
		Root:     filepath.Join(t.TempDir(), "site"),
		StateDir: t.TempDir(),
	}

	t.Setenv("HOME", env.HomeDir)
	t.Setenv("USERPROFILE", env.HomeDir)
	t.Setenv("NEU_INSTALL_ROOT", env.Root)
	t.Setenv("NEU_STATE_DIR", env.StateDir)
	t.Setenv("NEU_ENDPOINT", endpoint)
	t.Setenv("NEU_CURRENT_VERSION", "1.0.2")

	return env
}

// releaseFeed serves a GitHub-style latest-release document and a zipball.
type releaseFeed struct {
	*httptest.Server
	tag       atomic.Value
	zipball   atomic.Value
	downloads atomic.Int64
}

func newReleaseFeed(t *testing.T, tag string, files map[string]string) *releaseFeed {
	t.Helper()
	f := &releaseFeed{}
	f.publish(t, tag, files)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/releases/latest":
			w.Header().Set("Content-Type", "application/json")
			tag := f.tag.Load().(string)
			w.Write([]byte(`{"tag_name":"` + tag + `","zipball_url":"` + f.URL + `/zipball/` + tag + `"}`))
		case "/zipball/" + f.tag.Load().(string):
			f.downloads.Add(1)
			w.Write(f.zipball.Load().([]byte))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

// publish replaces the latest release with tag and a zipball holding files
// under a single top-level directory.
func (f *releaseFeed) publish(t *testing.T, tag string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	prefix := "neu-labs-site-" + strings.TrimPrefix(tag, "v") + "/"
	for name, body := range files {
		w, err := zw.Create(prefix + name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.tag.Store(tag)
	f.zipball.Store(buf.Bytes())
}

func (f *releaseFeed) endpoint() string {
	return f.URL + "/releases/latest"
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("expected file to exist: %s", path)
	}
}

func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file to NOT exist: %s", path)
	}
}

func assertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("file %s does not contain %q", path, substr)
	}
}
