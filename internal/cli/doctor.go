package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/neu-labs/neu/internal/config"
	"github.com/neu-labs/neu/internal/updater"
	"github.com/spf13/cobra"
)

var doctorOffline bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip the release endpoint check")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check settings, directories and the release endpoint",
	Long:  `Run diagnostic checks on the neu configuration and environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Current()
		if err != nil {
			return err
		}

		failed := 0
		report := func(ok bool, format string, a ...any) {
			tag := "[OK]  "
			if !ok {
				tag = "[FAIL]"
				failed++
			}
			fmt.Printf("%s %s\n", tag, fmt.Sprintf(format, a...))
		}

		fmt.Printf("Config file: %s\n", config.FilePath())
		if err := s.Validate(); err != nil {
			report(false, "settings: %v", err)
		} else {
			report(true, "settings valid")
		}

		if s.InstallRoot != "" {
			checkRoot(s.InstallRoot, report)
		}
		checkWritable(s.StateDir, report)

		if !doctorOffline && s.Endpoint != "" {
			checkEndpoint(cmd.Context(), s, report)
		}

		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

type reportFunc func(ok bool, format string, a ...any)

func checkRoot(root string, report reportFunc) {
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		fmt.Printf("[WARN] install root %s does not exist yet; the first update creates it\n", root)
	case err != nil:
		report(false, "install root %s: %v", root, err)
	case !info.IsDir():
		report(false, "install root %s is not a directory", root)
	default:
		report(true, "install root %s", root)
	}

	if _, err := os.Stat(updater.PreviousPath(root)); err == nil {
		fmt.Printf("[INFO] previous installation kept at %s\n", updater.PreviousPath(root))
	}
}

func checkWritable(dir string, report reportFunc) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		report(false, "state dir %s: %v", dir, err)
		return
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		report(false, "state dir %s is not writable: %v", dir, err)
		return
	}
	f.Close()
	os.Remove(f.Name())
	report(true, "state dir %s writable", dir)
}

func checkEndpoint(ctx context.Context, s config.Settings, report reportFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
	defer cancel()

	release, err := newUpdater(s, nil).FetchLatest(ctx, s.Endpoint)
	switch {
	case errors.Is(err, updater.ErrNoRelease):
		fmt.Printf("[WARN] %s answered but publishes no usable release: %v\n", s.Endpoint, err)
	case err != nil:
		report(false, "release endpoint %s: %v", s.Endpoint, err)
	default:
		report(true, "release endpoint %s (latest %s)", s.Endpoint, release.TagName)
	}
}
