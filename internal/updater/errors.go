package updater

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by a cycle step wraps exactly one.
var (
	ErrTransport  = errors.New("transport failure")
	ErrNoRelease  = errors.New("no release published")
	ErrStorage    = errors.New("local storage failure")
	ErrIntegrity  = errors.New("integrity check failed")
	ErrCorrupt    = errors.New("corrupt archive")
	ErrFilesystem = errors.New("filesystem failure")
	ErrBusy       = errors.New("update cycle already in progress")
)

// kinds is the lookup order for KindOf.
var kinds = []error{ErrBusy, ErrNoRelease, ErrTransport, ErrStorage, ErrIntegrity, ErrCorrupt, ErrFilesystem}

var kindNames = map[error]string{
	ErrTransport:  "transport",
	ErrNoRelease:  "no_release",
	ErrStorage:    "storage",
	ErrIntegrity:  "integrity",
	ErrCorrupt:    "corrupt",
	ErrFilesystem: "filesystem",
	ErrBusy:       "busy",
}

// Stage names the cycle step an error came from.
type Stage string

const (
	StageLock     Stage = "lock"
	StageFetch    Stage = "fetch"
	StageDownload Stage = "download"
	StageVerify   Stage = "verify"
	StageInstall  Stage = "install"
)

// StageError ties a failure kind to the step that produced it.
// errors.Is matches both the kind sentinel and the underlying cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(stage Stage, kind, err error) error {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf returns the failure kind wrapped by err, or nil if there is none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Reason returns a short machine-friendly name for err's failure kind,
// "unknown" when err carries none, and "" for nil.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if name, ok := kindNames[KindOf(err)]; ok {
		return name
	}
	return "unknown"
}
