package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neu-labs/neu/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Setting keys.
const (
	KeyEndpoint        = "endpoint"
	KeyInstallRoot     = "install_root"
	KeyCurrentVersion  = "current_version"
	KeyStateDir        = "state_dir"
	KeyInterval        = "interval"
	KeyFetchTimeout    = "fetch_timeout"
	KeyDownloadTimeout = "download_timeout"
	KeyLockTTL         = "lock_ttl"
	KeyUserAgent       = "user_agent"
	KeyAsset           = "asset"
	KeyMirror          = "mirror"
	KeyRequireChecksum = "require_checksum"
	KeyBlockURLs       = "block_urls"
	KeyListen          = "listen"
	KeyLogLevel        = "log_level"
)

// Dir returns the path to the config directory (~/.neu/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.neu/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	setDefaults()

	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

func setDefaults() {
	viper.SetDefault(KeyEndpoint, fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", branding.GitHubRepo()))
	viper.SetDefault(KeyCurrentVersion, "0.0.0")
	viper.SetDefault(KeyStateDir, filepath.Join(Dir(), "state"))
	viper.SetDefault(KeyInterval, time.Hour)
	viper.SetDefault(KeyFetchTimeout, 30*time.Second)
	viper.SetDefault(KeyDownloadTimeout, 10*time.Minute)
	viper.SetDefault(KeyLockTTL, 30*time.Minute)
	viper.SetDefault(KeyUserAgent, branding.UserAgent())
	viper.SetDefault(KeyListen, "127.0.0.1:8787")
	viper.SetDefault(KeyLogLevel, "info")
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
