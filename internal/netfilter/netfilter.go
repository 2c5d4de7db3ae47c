// Package netfilter refuses outbound HTTP requests aimed at update
// endpoints that neu takes over from a host system.
package netfilter

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrBlocked is returned for requests whose URL matches a block rule.
var ErrBlocked = errors.New("request blocked")

// Transport wraps an http.RoundTripper and fails requests whose URL
// contains any Block substring. URLs starting with an Allow prefix always
// pass, so the release endpoint can be exempted from a broad rule.
type Transport struct {
	Base   http.RoundTripper
	Block  []string
	Allow  []string
	Logger *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if rule, blocked := t.Match(req.URL.String()); blocked {
		if t.Logger != nil {
			t.Logger.Debug("blocked outbound request", "url", req.URL.Redacted(), "rule", rule)
		}
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, fmt.Errorf("%w: %s matches %q", ErrBlocked, req.URL.Redacted(), rule)
	}
	return t.base().RoundTrip(req)
}

// Match reports whether rawURL is blocked, and by which rule.
func (t *Transport) Match(rawURL string) (string, bool) {
	for _, prefix := range t.Allow {
		if prefix != "" && strings.HasPrefix(rawURL, prefix) {
			return "", false
		}
	}
	for _, rule := range t.Block {
		if rule != "" && strings.Contains(rawURL, rule) {
			return rule, true
		}
	}
	return "", false
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// NewClient returns an http.Client whose requests pass through a
// Transport with the given rules.
func NewClient(block, allow []string, logger *slog.Logger) *http.Client {
	return &http.Client{
		Transport: &Transport{Block: block, Allow: allow, Logger: logger},
	}
}
