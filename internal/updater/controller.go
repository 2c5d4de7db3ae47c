package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Fetcher discovers the latest published release.
type Fetcher interface {
	FetchLatest(ctx context.Context, endpoint string) (*Release, error)
}

// Downloader retrieves and verifies a release's artifact.
type Downloader interface {
	Download(ctx context.Context, release *Release) (*Artifact, error)
	VerifyChecksum(ctx context.Context, release *Release, art *Artifact) error
}

// Source is everything a cycle needs from the release feed. *Updater
// implements it.
type Source interface {
	Fetcher
	Downloader
}

// Outcome is the terminal state of a cycle.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeUpToDate Outcome = "up_to_date"
	OutcomeNoUpdate Outcome = "no_update"
	OutcomeFailed   Outcome = "failed"
)

// Result describes one finished cycle. Err is set for failed cycles and
// for no_update cycles caused by unusable release metadata.
type Result struct {
	ID         string
	Outcome    Outcome
	Current    string
	Candidate  string
	Root       string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Reason returns the failure kind name, or "" when the cycle has no error.
func (r Result) Reason() string {
	return Reason(r.Err)
}

// Cycle holds the explicit inputs of one update cycle.
type Cycle struct {
	CurrentVersion string
	Endpoint       string
	Root           string
	// Force installs the latest release even when it is not newer.
	Force bool
}

// ControllerConfig carries the settings a Controller needs beyond its
// Source.
type ControllerConfig struct {
	Endpoint        string
	Root            string
	CurrentVersion  string
	StateDir        string
	FetchTimeout    time.Duration
	DownloadTimeout time.Duration
	LockTTL         time.Duration
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger cycles report to.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records every cycle in m.
func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller runs update cycles against one installation root. Cycles
// never panic and never return errors: every failure ends up in the
// Result.
type Controller struct {
	src     Source
	cfg     ControllerConfig
	lock    *RootLock
	logger  *slog.Logger
	metrics *Metrics
	install func(art *Artifact, root string) error
	now     func() time.Time
}

// NewController creates a Controller reading releases from src.
func NewController(src Source, cfg ControllerConfig, opts ...ControllerOption) *Controller {
	c := &Controller{
		src:     src,
		cfg:     cfg,
		lock:    NewRootLock(cfg.StateDir, cfg.LockTTL),
		logger:  slog.Default(),
		install: Install,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.setInstalled(c.Baseline())
	return c
}

// Baseline returns the version cycles compare against: the manifest's
// version when it describes the configured root, otherwise the configured
// current version.
func (c *Controller) Baseline() string {
	if c.cfg.StateDir == "" {
		return c.cfg.CurrentVersion
	}
	m, err := LoadManifest(c.cfg.StateDir)
	if err != nil {
		c.logger.Warn("ignoring unreadable manifest", "error", err)
		return c.cfg.CurrentVersion
	}
	if m == nil || m.Version == "" || !samePath(m.Root, c.cfg.Root) {
		return c.cfg.CurrentVersion
	}
	return m.Version
}

// Run performs one cycle with the configured endpoint and root.
func (c *Controller) Run(ctx context.Context) Result {
	return c.RunCycle(ctx, Cycle{
		CurrentVersion: c.Baseline(),
		Endpoint:       c.cfg.Endpoint,
		Root:           c.cfg.Root,
	})
}

// RunCycle fetches the latest release and installs it into cyc.Root when it
// is newer than cyc.CurrentVersion.
func (c *Controller) RunCycle(ctx context.Context, cyc Cycle) (res Result) {
	res = Result{
		ID:        uuid.NewString(),
		Current:   cyc.CurrentVersion,
		Root:      cyc.Root,
		StartedAt: c.now(),
	}
	log := c.logger.With("cycle", res.ID, "root", cyc.Root)

	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("cycle panicked: %v", p)
		}
		res.FinishedAt = c.now()
		c.finish(res, log)
	}()

	release, err := c.lock.Acquire(cyc.Root)
	if err != nil {
		return failed(res, err)
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("releasing cycle lock", "error", err)
			c.metrics.cleanupFailed()
		}
	}()

	log.Debug("fetching release metadata", "endpoint", cyc.Endpoint)
	fetchCtx, cancel := withTimeout(ctx, c.cfg.FetchTimeout)
	rel, err := c.src.FetchLatest(fetchCtx, cyc.Endpoint)
	cancel()
	if errors.Is(err, ErrNoRelease) {
		res.Outcome = OutcomeNoUpdate
		res.Err = err
		return res
	}
	if err != nil {
		return failed(res, err)
	}
	res.Candidate = rel.TagName

	if !cyc.Force && !IsNewer(cyc.CurrentVersion, rel.TagName) {
		res.Outcome = OutcomeUpToDate
		return res
	}

	dlCtx, cancel := withTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	log.Info("downloading release", "tag", rel.TagName, "url", rel.ArtifactURL)
	art, err := c.src.Download(dlCtx, rel)
	if err != nil {
		return failed(res, err)
	}
	defer func() {
		if err := art.Close(); err != nil {
			log.Warn("removing downloaded artifact", "error", err)
			c.metrics.cleanupFailed()
		}
	}()
	c.metrics.addDownloaded(art.Size)

	if err := c.src.VerifyChecksum(dlCtx, rel, art); err != nil {
		return failed(res, err)
	}

	log.Info("installing release", "tag", rel.TagName)
	if err := c.install(art, cyc.Root); err != nil {
		return failed(res, err)
	}

	c.recordInstall(rel, art, cyc, log)
	res.Outcome = OutcomeDone
	return res
}

func (c *Controller) recordInstall(rel *Release, art *Artifact, cyc Cycle, log *slog.Logger) {
	c.metrics.setInstalled(rel.TagName)
	if c.cfg.StateDir == "" {
		return
	}
	root := cyc.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	m := &Manifest{
		Version:     rel.TagName,
		Previous:    cyc.CurrentVersion,
		Root:        root,
		InstalledAt: c.now().UTC(),
		Source:      rel.ArtifactURL,
		SHA256:      art.SHA256,
	}
	if err := SaveManifest(c.cfg.StateDir, m); err != nil {
		log.Error("recording installed version", "error", err)
	}
}

// Rollback swaps the configured root with the tree the last install
// replaced and returns the version now in place. It holds the root's lock
// so it cannot interleave with a cycle.
func (c *Controller) Rollback() (string, error) {
	release, err := c.lock.Acquire(c.cfg.Root)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := release(); err != nil {
			c.logger.Warn("releasing rollback lock", "error", err)
			c.metrics.cleanupFailed()
		}
	}()

	if err := Rollback(c.cfg.Root); err != nil {
		return "", err
	}

	m, err := LoadManifest(c.cfg.StateDir)
	if err != nil || m == nil || !samePath(m.Root, c.cfg.Root) {
		c.logger.Warn("rolled back without a manifest, version unknown", "root", c.cfg.Root, "error", err)
		return "", nil
	}
	m.Version, m.Previous = m.Previous, m.Version
	m.InstalledAt = c.now().UTC()
	m.Source, m.SHA256 = "", ""
	if err := SaveManifest(c.cfg.StateDir, m); err != nil {
		return m.Version, fmt.Errorf("recording rolled back version: %w", err)
	}
	c.metrics.setInstalled(m.Version)
	c.logger.Info("rolled back installation", "root", c.cfg.Root, "version", m.Version)
	return m.Version, nil
}

func (c *Controller) finish(res Result, log *slog.Logger) {
	attrs := []any{
		"outcome", res.Outcome,
		"current", res.Current,
		"candidate", res.Candidate,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	}
	switch {
	case res.Outcome != OutcomeFailed:
		if res.Err != nil {
			attrs = append(attrs, "detail", res.Err)
		}
		log.Info("update cycle finished", attrs...)
	case isFetchTransport(res.Err):
		log.Warn("update cycle failed", append(attrs, "reason", res.Reason(), "error", res.Err)...)
	default:
		log.Error("update cycle failed", append(attrs, "reason", res.Reason(), "error", res.Err)...)
	}

	c.metrics.observeCycle(res)

	if c.cfg.StateDir != "" {
		if err := SaveStatus(c.cfg.StateDir, StatusFromResult(res)); err != nil {
			log.Warn("recording cycle status", "error", err)
		}
	}
}

func failed(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}

func isFetchTransport(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == StageFetch && errors.Is(err, ErrTransport)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
