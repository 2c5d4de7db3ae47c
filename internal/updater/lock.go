package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rootMutexes holds one mutex per installation root for this process.
var rootMutexes sync.Map

// RootLock grants at most one update cycle per installation root. Within a
// process it uses a mutex per root; across processes, a marker file under
// dir created with O_EXCL. Markers older than ttl are treated as left over
// from a crashed cycle and replaced.
type RootLock struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewRootLock returns a lock keeping its markers in dir. An empty dir
// disables the cross-process marker.
func NewRootLock(dir string, ttl time.Duration) *RootLock {
	return &RootLock{dir: dir, ttl: ttl, now: time.Now}
}

// Acquire claims root or fails with ErrBusy. The returned release function
// reports a marker that could not be removed.
func (l *RootLock) Acquire(root string) (release func() error, err error) {
	key := lockKey(root)
	v, _ := rootMutexes.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, stageErr(StageLock, ErrBusy, fmt.Errorf("root %s is locked by this process", root))
	}

	if l.dir == "" {
		return func() error { mu.Unlock(); return nil }, nil
	}

	marker := filepath.Join(l.dir, "locks", key+".lock")
	if err := l.createMarker(marker, root); err != nil {
		mu.Unlock()
		return nil, err
	}

	return func() error {
		defer mu.Unlock()
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing lock marker: %w", err)
		}
		return nil
	}, nil
}

func (l *RootLock) createMarker(marker, root string) error {
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		return stageErr(StageLock, ErrFilesystem, fmt.Errorf("creating lock directory: %w", err))
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return writeMarker(f, root, l.now())
		}
		if !errors.Is(err, os.ErrExist) {
			return stageErr(StageLock, ErrFilesystem, fmt.Errorf("creating lock marker: %w", err))
		}
		if !l.stale(marker) {
			return stageErr(StageLock, ErrBusy, fmt.Errorf("root %s is locked by %s", root, marker))
		}
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			return stageErr(StageLock, ErrFilesystem, fmt.Errorf("removing stale lock marker: %w", err))
		}
	}
	return stageErr(StageLock, ErrBusy, fmt.Errorf("root %s is locked by %s", root, marker))
}

// writeMarker records the owner in a freshly created marker. A marker that
// cannot be written is removed so it does not hold the root until it goes
// stale.
func writeMarker(f *os.File, root string, now time.Time) error {
	_, werr := fmt.Fprintf(f, "pid=%d\nroot=%s\nsince=%s\n", os.Getpid(), root, now.UTC().Format(time.RFC3339))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return stageErr(StageLock, ErrFilesystem, fmt.Errorf("writing lock marker: %w", err))
	}
	return nil
}

func (l *RootLock) stale(marker string) bool {
	if l.ttl <= 0 {
		return false
	}
	info, err := os.Stat(marker)
	if err != nil {
		return os.IsNotExist(err)
	}
	return l.now().Sub(info.ModTime()) > l.ttl
}

func lockKey(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:8])
}
