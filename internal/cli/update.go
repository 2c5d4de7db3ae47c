package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/neu-labs/neu/internal/config"
	"github.com/neu-labs/neu/internal/updater"
	"github.com/spf13/cobra"
)

var (
	updateCheck    bool
	updateForce    bool
	updateRoot     string
	updateEndpoint string
	updateCurrent  string
)

func init() {
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "Only check for a newer release, don't install")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Install the latest release even if it is not newer")
	updateCmd.Flags().StringVar(&updateRoot, "root", "", "Installation root (default from config)")
	updateCmd.Flags().StringVar(&updateEndpoint, "endpoint", "", "Release metadata URL (default from config)")
	updateCmd.Flags().StringVar(&updateCurrent, "current", "", "Installed version to compare against (default from manifest)")

	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run one update cycle",
	Long: `Checks the release feed and installs the latest release into the
installation root when it is newer than the installed version.

  neu update                     # one cycle with configured settings
  neu update --check             # report only
  neu update --root ./site --endpoint https://api.github.com/repos/acme/site/releases/latest`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(func(s *config.Settings) {
			if updateRoot != "" {
				s.InstallRoot = updateRoot
			}
			if updateEndpoint != "" {
				s.Endpoint = updateEndpoint
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		u := newUpdater(s, os.Stderr)
		ctrl := newController(s, u, nil)

		current := updateCurrent
		if current == "" {
			current = ctrl.Baseline()
		}

		if updateCheck {
			return checkOnly(ctx, u, s, current)
		}

		fmt.Fprintf(os.Stderr, "Checking %s...\n", s.Endpoint)
		res := ctrl.RunCycle(ctx, updater.Cycle{
			CurrentVersion: current,
			Endpoint:       s.Endpoint,
			Root:           s.InstallRoot,
			Force:          updateForce,
		})
		return reportCycle(res)
	},
}

func checkOnly(ctx context.Context, u *updater.Updater, s config.Settings, current string) error {
	ctx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
	defer cancel()

	release, err := u.FetchLatest(ctx, s.Endpoint)
	if errors.Is(err, updater.ErrNoRelease) {
		fmt.Println("No release published")
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}

	if updater.IsNewer(current, release.TagName) {
		fmt.Printf("Update available: %s -> %s\n", current, release.TagName)
	} else {
		fmt.Printf("Up to date (%s, latest %s)\n", current, release.TagName)
	}
	return nil
}

// reportCycle prints a cycle's outcome. Only failed cycles return an error.
func reportCycle(res updater.Result) error {
	switch res.Outcome {
	case updater.OutcomeDone:
		fmt.Printf("Updated %s: %s -> %s\n", res.Root, res.Current, res.Candidate)
	case updater.OutcomeUpToDate:
		fmt.Printf("Up to date (%s, latest %s)\n", res.Current, res.Candidate)
	case updater.OutcomeNoUpdate:
		fmt.Println("No release published")
	default:
		return fmt.Errorf("update cycle %s failed (%s): %w", res.ID, res.Reason(), res.Err)
	}
	return nil
}
