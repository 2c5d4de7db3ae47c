package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const statusFileName = "status.json"

// Status is the persisted record of the most recent cycle.
type Status struct {
	ID         string    `json:"id"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Root       string    `json:"root"`
	Current    string    `json:"current_version"`
	Candidate  string    `json:"candidate_version,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// StatusFromResult converts a cycle result into its persisted form.
func StatusFromResult(r Result) *Status {
	s := &Status{
		ID:         r.ID,
		Outcome:    r.Outcome,
		Reason:     Reason(r.Err),
		Root:       r.Root,
		Current:    r.Current,
		Candidate:  r.Candidate,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// LoadStatus reads the status record from stateDir.
// Returns nil, nil if no cycle has been recorded yet.
func LoadStatus(stateDir string) (*Status, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, statusFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}
	return &s, nil
}

// SaveStatus writes the status record to stateDir.
func SaveStatus(stateDir string, s *Status) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	return writeFileAtomic(stateDir, statusFileName, data)
}

// ClearStatus removes the status record. A missing record is not an error.
func ClearStatus(stateDir string) error {
	err := os.Remove(filepath.Join(stateDir, statusFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing status: %w", err)
	}
	return nil
}

// IsStatusStale returns true if no cycle finished within maxAge.
func IsStatusStale(s *Status, maxAge time.Duration) bool {
	if s == nil {
		return true
	}
	return time.Since(s.FinishedAt) > maxAge
}
