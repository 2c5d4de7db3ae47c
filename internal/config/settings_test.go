package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestCurrent_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	Load()
	s, err := Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}

	if s.Interval != time.Hour {
		t.Errorf("Interval = %s, want 1h", s.Interval)
	}
	if s.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %s, want 30s", s.FetchTimeout)
	}
	if s.UserAgent == "" {
		t.Error("UserAgent default is empty")
	}
	if s.Endpoint == "" {
		t.Error("Endpoint default is empty")
	}
}

func TestCurrent_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NEU_INSTALL_ROOT", "/srv/app")
	t.Setenv("NEU_INTERVAL", "5m")

	Load()
	s, err := Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if s.InstallRoot != "/srv/app" {
		t.Errorf("InstallRoot = %q, want /srv/app", s.InstallRoot)
	}
	if s.Interval != 5*time.Minute {
		t.Errorf("Interval = %s, want 5m", s.Interval)
	}
}

func TestCurrent_BlockURLsList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"comma separated", "api.wordpress.org,downloads.example.com", []string{"api.wordpress.org", "downloads.example.com"}},
		{"comma and space", "a.example.com, b.example.com", []string{"a.example.com", "b.example.com"}},
		{"space separated", "a.example.com b.example.com", []string{"a.example.com", "b.example.com"}},
		{"single", "/update-check/", []string{"/update-check/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			t.Setenv("HOME", t.TempDir())

			Load()
			if err := Set(KeyBlockURLs, tt.value); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			s, err := Current()
			if err != nil {
				t.Fatalf("Current failed: %v", err)
			}
			if strings.Join(s.BlockURLs, "|") != strings.Join(tt.want, "|") {
				t.Errorf("BlockURLs = %q, want %q", s.BlockURLs, tt.want)
			}
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	valid := Settings{
		Endpoint:    "https://example.com/latest",
		InstallRoot: "/srv/app",
		StateDir:    "/var/lib/neu",
		Interval:    time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(s *Settings) {}, false},
		{"missing endpoint", func(s *Settings) { s.Endpoint = "" }, true},
		{"missing root", func(s *Settings) { s.InstallRoot = "" }, true},
		{"missing state dir", func(s *Settings) { s.StateDir = "" }, true},
		{"zero interval", func(s *Settings) { s.Interval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	Load()
	if err := Set(KeyMirror, "https://mirror.example.com"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := Get(KeyMirror); got != "https://mirror.example.com" {
		t.Errorf("Get(mirror) = %q", got)
	}
}
