package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/neu-labs/neu/internal/branding"
	"github.com/neu-labs/neu/internal/updater"
	"github.com/spf13/cobra"
)

var (
	selfUpdateCheck   bool
	selfUpdateForce   bool
	selfUpdateVersion string
)

func init() {
	selfUpdateCmd.Flags().BoolVar(&selfUpdateCheck, "check", false, "Only check for a newer neu, don't install")
	selfUpdateCmd.Flags().BoolVar(&selfUpdateForce, "force", false, "Reinstall even if already on the latest version")
	selfUpdateCmd.Flags().StringVar(&selfUpdateVersion, "version", "", "Install a specific version (e.g., 1.2.0)")
	rootCmd.AddCommand(selfUpdateCmd)
}

var selfUpdateCmd = &cobra.Command{
	Use:   "self-update",
	Short: "Update the neu binary to the latest release",
	Long: `Downloads the neu build for this platform from GitHub releases (or a
configured mirror), verifies it, and replaces the running binary.

  neu self-update                   # update to latest
  neu self-update --check           # check only
  neu self-update --version 1.2.0   # install a specific version`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		u := newUpdater(s, os.Stderr)

		if selfUpdateVersion != "" {
			fmt.Fprintf(os.Stderr, "Checking for version %s...\n", selfUpdateVersion)
		} else {
			fmt.Fprintln(os.Stderr, "Checking for updates...")
		}
		release, err := u.FetchLatest(ctx, updater.SelfReleaseURL(selfUpdateVersion))
		if errors.Is(err, updater.ErrNoRelease) {
			fmt.Println("No release published")
			return nil
		}
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}

		available := updater.IsNewer(buildVersion, release.TagName)
		if selfUpdateCheck {
			if available {
				fmt.Printf("Update available: %s -> %s\n", buildVersion, release.TagName)
			} else {
				fmt.Printf("You are on the latest version (%s)\n", buildVersion)
			}
			return nil
		}
		if !available && !selfUpdateForce && selfUpdateVersion == "" {
			fmt.Printf("You are on the latest version (%s)\n", buildVersion)
			return nil
		}

		exe, err := updater.ExecutablePath()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Downloading %s %s for %s/%s...\n", branding.CLIName(), release.TagName, runtime.GOOS, runtime.GOARCH)
		if err := u.SelfUpdate(ctx, release, exe); err != nil {
			return fmt.Errorf("updating %s: %w", branding.CLIName(), err)
		}

		fmt.Printf("Successfully updated to %s\n", release.TagName)
		return nil
	},
}
