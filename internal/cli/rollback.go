package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the installation replaced by the last update",
	Long: `Swaps the installation root with the tree the last update replaced.
Running it twice returns to the newer version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(nil)
		if err != nil {
			return err
		}

		ctrl := newController(s, newUpdater(s, nil), nil)
		version, err := ctrl.Rollback()
		if err != nil {
			return fmt.Errorf("rolling back: %w", err)
		}
		if version == "" {
			fmt.Printf("Rolled back %s\n", s.InstallRoot)
			return nil
		}
		fmt.Printf("Rolled back %s to %s\n", s.InstallRoot, version)
		return nil
	},
}
