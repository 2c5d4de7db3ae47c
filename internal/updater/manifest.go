package updater

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

const manifestFileName = "manifest.yaml"

// Manifest records what is installed at Root. It is written only after a
// successful install and supplies the comparison baseline for the next
// cycle.
type Manifest struct {
	Version     string    `yaml:"version"`
	Previous    string    `yaml:"previous_version,omitempty"`
	Root        string    `yaml:"root"`
	InstalledAt time.Time `yaml:"installed_at"`
	Source      string    `yaml:"source,omitempty"`
	SHA256      string    `yaml:"sha256,omitempty"`
}

// LoadManifest reads the manifest from stateDir.
// Returns nil, nil if none has been written yet.
func LoadManifest(stateDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, manifestFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// SaveManifest writes the manifest to stateDir, replacing any previous one
// in a single rename.
func SaveManifest(stateDir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return writeFileAtomic(stateDir, manifestFileName, data)
}

// writeFileAtomic writes data to dir/name through a temp file and rename.
func writeFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
