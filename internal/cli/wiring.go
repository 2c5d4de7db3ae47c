package cli

import (
	"io"
	"net/http"
	"os"

	"github.com/neu-labs/neu/internal/config"
	"github.com/neu-labs/neu/internal/netfilter"
	"github.com/neu-labs/neu/internal/updater"
)

// loadSettings decodes the configuration, lets apply override fields from
// flags, and validates the result.
func loadSettings(apply func(*config.Settings)) (config.Settings, error) {
	s, err := config.Current()
	if err != nil {
		return config.Settings{}, err
	}
	if apply != nil {
		apply(&s)
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

// newHTTPClient returns a client that refuses the configured block rules.
// The release endpoint and neu's own release API are always reachable.
func newHTTPClient(s config.Settings) *http.Client {
	return netfilter.NewClient(s.BlockURLs, []string{s.Endpoint, updater.SelfReleaseURL("")}, logger)
}

func newUpdater(s config.Settings, progress io.Writer) *updater.Updater {
	opts := []updater.Option{
		updater.WithHTTPClient(newHTTPClient(s)),
		updater.WithUserAgent(s.UserAgent),
		updater.WithAssetName(s.Asset),
		updater.WithRequireChecksum(s.RequireChecksum),
		updater.WithLogger(logger),
	}
	if s.Mirror != "" {
		opts = append(opts, updater.WithMirror(s.Mirror))
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		opts = append(opts, updater.WithToken(token))
	}
	if progress != nil {
		opts = append(opts, updater.WithProgress(progress))
	}
	return updater.New(opts...)
}

func newController(s config.Settings, src updater.Source, metrics *updater.Metrics) *updater.Controller {
	return updater.NewController(src, updater.ControllerConfig{
		Endpoint:        s.Endpoint,
		Root:            s.InstallRoot,
		CurrentVersion:  s.CurrentVersion,
		StateDir:        s.StateDir,
		FetchTimeout:    s.FetchTimeout,
		DownloadTimeout: s.DownloadTimeout,
		LockTTL:         s.LockTTL,
	}, updater.WithControllerLogger(logger), updater.WithMetrics(metrics))
}
