package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/neu-labs/neu/internal/branding"
)

const (
	githubAPIBase    = "https://api.github.com"
	checksumFileName = "checksums.txt"
	// maxMetadataSize bounds the release metadata body read into memory.
	maxMetadataSize = 4 << 20
)

// SelfReleaseURL returns the release API URL for neu's own repository.
// An empty tag selects the latest release.
func SelfReleaseURL(tag string) string {
	if tag == "" {
		return fmt.Sprintf("%s/repos/%s/releases/latest", githubAPIBase, branding.GitHubRepo())
	}
	if !strings.HasPrefix(tag, "v") {
		tag = "v" + tag
	}
	return fmt.Sprintf("%s/repos/%s/releases/tags/%s", githubAPIBase, branding.GitHubRepo(), tag)
}

// FetchLatest queries the release endpoint and parses its metadata.
//
// Network failures and non-2xx responses wrap ErrTransport. A body that is
// not JSON, lacks a tag, or names no downloadable artifact wraps
// ErrNoRelease: there is nothing to install, which is not an error for the
// caller.
func (u *Updater) FetchLatest(ctx context.Context, endpoint string) (*Release, error) {
	body, err := u.getBytes(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, stageErr(StageFetch, ErrTransport, err)
	}

	if err := validateRelease(body); err != nil {
		return nil, stageErr(StageFetch, ErrNoRelease, err)
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, stageErr(StageFetch, ErrNoRelease, fmt.Errorf("parsing release JSON: %w", err))
	}

	if u.mirror != "" {
		for i := range release.Assets {
			release.Assets[i].DownloadURL = strings.TrimRight(u.mirror, "/") + "/" + release.Assets[i].Name
		}
	}

	if err := u.resolveArtifact(&release); err != nil {
		return nil, stageErr(StageFetch, ErrNoRelease, err)
	}
	return &release, nil
}

// resolveArtifact picks the artifact and checksum locations.
// Precedence: explicit artifact_url, the configured asset, the zipball.
func (u *Updater) resolveArtifact(r *Release) error {
	switch {
	case r.Artifact != "":
		r.ArtifactURL = r.Artifact
		r.ArtifactName = nameFromURL(r.Artifact, r.TagName)
	case u.assetName != "":
		asset := findAsset(r.Assets, u.assetName)
		if asset == nil {
			return fmt.Errorf("release %s has no asset named %q", r.TagName, u.assetName)
		}
		r.ArtifactURL = asset.DownloadURL
		r.ArtifactName = asset.Name
	case r.ZipballURL != "":
		r.ArtifactURL = r.ZipballURL
		r.ArtifactName = nameFromURL(r.ZipballURL, r.TagName)
	default:
		return fmt.Errorf("release %s has no artifact to download", r.TagName)
	}

	if a := findAsset(r.Assets, checksumFileName); a != nil {
		r.ChecksumURL = a.DownloadURL
	} else if a := findAsset(r.Assets, r.ArtifactName+".sha256"); a != nil {
		r.ChecksumURL = a.DownloadURL
	}
	return nil
}

func findAsset(assets []Asset, name string) *Asset {
	for i := range assets {
		if assets[i].Name == name {
			return &assets[i]
		}
	}
	return nil
}

// nameFromURL returns the last path element of raw, or fallback when the
// URL has none.
func nameFromURL(raw, fallback string) string {
	parsed, err := url.Parse(raw)
	if err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return fallback
}

// get issues an identified GET and returns the response for a 2xx status.
// The caller closes the body.
func (u *Updater) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", u.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		if resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%s returned status %d (rate limited or unidentified client)", rawURL, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s returned status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

func (u *Updater) getBytes(ctx context.Context, rawURL, accept string) ([]byte, error) {
	resp, err := u.get(ctx, rawURL, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
