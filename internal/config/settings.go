package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the typed view of the configuration used by the update
// controller, the daemon, and the outbound HTTP client.
type Settings struct {
	Endpoint        string        `mapstructure:"endpoint"`
	InstallRoot     string        `mapstructure:"install_root"`
	CurrentVersion  string        `mapstructure:"current_version"`
	StateDir        string        `mapstructure:"state_dir"`
	Interval        time.Duration `mapstructure:"interval"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	UserAgent       string        `mapstructure:"user_agent"`
	Asset           string        `mapstructure:"asset"`
	Mirror          string        `mapstructure:"mirror"`
	RequireChecksum bool          `mapstructure:"require_checksum"`
	BlockURLs       []string      `mapstructure:"block_urls"`
	Listen          string        `mapstructure:"listen"`
	LogLevel        string        `mapstructure:"log_level"`
}

// Current decodes the loaded configuration. Call Load first.
func Current() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	// AutomaticEnv only applies to explicit lookups, not Unmarshal, for keys
	// without a default, so these are re-read individually.
	s.InstallRoot = viper.GetString(KeyInstallRoot)
	s.Asset = viper.GetString(KeyAsset)
	s.Mirror = viper.GetString(KeyMirror)
	s.RequireChecksum = viper.GetBool(KeyRequireChecksum)
	s.BlockURLs = splitList(viper.GetStringSlice(KeyBlockURLs))
	return s, nil
}

// Validate reports settings that make an update cycle impossible.
func (s Settings) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("%s is not set", KeyEndpoint)
	}
	if s.InstallRoot == "" {
		return fmt.Errorf("%s is not set", KeyInstallRoot)
	}
	if s.StateDir == "" {
		return fmt.Errorf("%s is not set", KeyStateDir)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyInterval, s.Interval)
	}
	return nil
}

// splitList flattens list entries that hold several comma or whitespace
// separated values, as `neu config set` and env overrides store them.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, v := range strings.FieldsFunc(item, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		}) {
			out = append(out, v)
		}
	}
	return out
}
