package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neu-labs/neu/internal/branding"
	"github.com/neu-labs/neu/internal/config"
	"github.com/neu-labs/neu/internal/logging"
	"github.com/neu-labs/neu/internal/updater"
	"github.com/spf13/cobra"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	logLevel string
	logger   = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps an installation directory in step with a remote release feed.
Each update cycle checks the feed, compares the published tag with the installed
version, and installs newer releases atomically, keeping the previous tree for rollback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()

		level := config.Get(config.KeyLogLevel)
		if logLevel != "" {
			level = logLevel
		}
		logger = logging.New(os.Stderr, level)
		slog.SetDefault(logger)

		// Skip the banner for commands that report cycle state themselves.
		switch cmd.Name() {
		case "update", "daemon", "status", "rollback", "self-update", "version":
			return
		}

		// Non-blocking banner from the last recorded cycle.
		if s, err := config.Current(); err == nil {
			updater.PrintStatusBanner(os.Stderr, s.StateDir, branding.CLIName(), bannerMaxAge(s.Interval))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
}

// bannerMaxAge is how long without a finished cycle before the banner
// warns: three intervals, but never less than a day.
func bannerMaxAge(interval time.Duration) time.Duration {
	if age := 3 * interval; age > 24*time.Hour {
		return age
	}
	return 24 * time.Hour
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
