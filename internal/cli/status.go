package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neu-labs/neu/internal/config"
	"github.com/neu-labs/neu/internal/updater"
	"github.com/spf13/cobra"
)

var (
	statusJSON  bool
	statusClear bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the last cycle record as JSON")
	statusCmd.Flags().BoolVar(&statusClear, "clear", false, "Remove the last cycle record")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed version and the last update cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Current()
		if err != nil {
			return err
		}

		if statusClear {
			if err := updater.ClearStatus(s.StateDir); err != nil {
				return err
			}
			fmt.Println("Cleared last cycle record")
			return nil
		}

		st, err := updater.LoadStatus(s.StateDir)
		if err != nil {
			return err
		}
		m, err := updater.LoadManifest(s.StateDir)
		if err != nil {
			return err
		}

		if statusJSON {
			out, err := json.MarshalIndent(map[string]any{
				"last_cycle": st,
				"manifest":   m,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling status: %w", err)
			}
			fmt.Println(string(out))
			return nil
		}

		printManifest(m, s)
		printStatus(st)
		return nil
	},
}

func printManifest(m *updater.Manifest, s config.Settings) {
	if m == nil {
		fmt.Printf("Installed:   %s (from config, nothing installed yet)\n", s.CurrentVersion)
		fmt.Printf("Root:        %s\n", s.InstallRoot)
		return
	}
	fmt.Printf("Installed:   %s (%s)\n", m.Version, m.InstalledAt.Local().Format(time.RFC1123))
	fmt.Printf("Root:        %s\n", m.Root)
	if m.Previous != "" {
		fmt.Printf("Previous:    %s (neu rollback restores it)\n", m.Previous)
	}
}

func printStatus(st *updater.Status) {
	if st == nil {
		fmt.Println("Last cycle:  none recorded")
		return
	}
	fmt.Printf("Last cycle:  %s at %s\n", st.Outcome, st.FinishedAt.Local().Format(time.RFC1123))
	if st.Candidate != "" {
		fmt.Printf("Release:     %s (compared with %s)\n", st.Candidate, st.Current)
	}
	if st.Outcome == updater.OutcomeFailed {
		fmt.Printf("Reason:      %s\n", st.Reason)
		fmt.Printf("Error:       %s\n", st.Error)
	}
}
