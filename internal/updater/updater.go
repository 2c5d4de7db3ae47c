package updater

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/neu-labs/neu/internal/branding"
)

// Release is the parsed form of the feed's latest-release metadata.
// ArtifactURL, ArtifactName and ChecksumURL are resolved after parsing.
type Release struct {
	TagName     string  `json:"tag_name"`
	Name        string  `json:"name"`
	HTMLURL     string  `json:"html_url"`
	Published   string  `json:"published_at"`
	ZipballURL  string  `json:"zipball_url"`
	TarballURL  string  `json:"tarball_url"`
	Artifact    string  `json:"artifact_url"`
	Assets      []Asset `json:"assets"`
	ArtifactURL string  `json:"-"`
	// ArtifactName is used to look the artifact up in a checksum file.
	ArtifactName string `json:"-"`
	ChecksumURL  string `json:"-"`
}

// Asset represents a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Updater talks to the release feed: it fetches metadata, downloads
// artifacts and verifies their checksums.
type Updater struct {
	httpClient      *http.Client
	userAgent       string
	token           string
	mirror          string
	assetName       string
	requireChecksum bool
	tempDir         string
	progress        io.Writer
	logger          *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) {
		u.httpClient = c
	}
}

// WithMirror sets a mirror URL for downloading release assets.
func WithMirror(mirror string) Option {
	return func(u *Updater) {
		u.mirror = mirror
	}
}

// WithUserAgent sets the identifying header sent on every request.
// Release APIs such as GitHub's reject requests without one.
func WithUserAgent(ua string) Option {
	return func(u *Updater) {
		if ua != "" {
			u.userAgent = ua
		}
	}
}

// WithToken sets a bearer token for the release API.
func WithToken(token string) Option {
	return func(u *Updater) {
		u.token = token
	}
}

// WithAssetName selects a named release asset as the artifact instead of
// the source zipball.
func WithAssetName(name string) Option {
	return func(u *Updater) {
		u.assetName = name
	}
}

// WithRequireChecksum makes releases without a published checksum fail
// verification.
func WithRequireChecksum(require bool) Option {
	return func(u *Updater) {
		u.requireChecksum = require
	}
}

// WithTempDir sets the parent directory for downloaded artifacts.
// Defaults to the system temp directory.
func WithTempDir(dir string) Option {
	return func(u *Updater) {
		u.tempDir = dir
	}
}

// WithProgress reports download progress to w.
func WithProgress(w io.Writer) Option {
	return func(u *Updater) {
		u.progress = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// New creates an Updater with the given options.
func New(opts ...Option) *Updater {
	u := &Updater{
		httpClient: http.DefaultClient,
		userAgent:  branding.UserAgent(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
