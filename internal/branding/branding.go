// Package branding provides compile-time identity values for the CLI.
//
// Forks edit branding.yaml in this package before building; Go's //go:embed
// bakes it into the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	HomeDir     string `yaml:"home_dir"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	GitHubRepo  string `yaml:"github_repo"`
	UserAgent   string `yaml:"user_agent"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is empty.
		defaults = brand{
			CLIName:     "neu",
			DisplayName: "Neu",
			Description: "Keeps an installation directory up to date from a release feed",
			HomeDir:     ".neu",
			EnvPrefix:   "NEU",
			GoModule:    "github.com/neu-labs/neu",
			GitHubRepo:  "neu-labs/neu",
			UserAgent:   "neu-updater",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "neu").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".neu").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "NEU").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GitHubRepo returns the "owner/repo" that publishes the neu binary itself.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// UserAgent returns the default identifying header sent on outbound requests.
func UserAgent() string { load(); return defaults.UserAgent }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "NEU_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
