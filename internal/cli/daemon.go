package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neu-labs/neu/internal/config"
	"github.com/neu-labs/neu/internal/daemon"
	"github.com/neu-labs/neu/internal/updater"
	"github.com/spf13/cobra"
)

var (
	daemonInterval time.Duration
	daemonListen   string
)

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Time between cycles (default from config)")
	daemonCmd.Flags().StringVar(&daemonListen, "listen", "", "HTTP listen address (default from config)")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run update cycles on a timer and on HTTP triggers",
	Long: `Runs one update cycle at startup and then every interval. POST /trigger
requests an immediate cycle; triggers that arrive while one is pending are
merged. GET /status, /healthz and /metrics report state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(func(s *config.Settings) {
			if daemonInterval > 0 {
				s.Interval = daemonInterval
			}
			if daemonListen != "" {
				s.Listen = daemonListen
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics := updater.NewMetrics()
		ctrl := newController(s, newUpdater(s, nil), metrics)
		sched := daemon.NewScheduler(ctrl, s.Interval, logger)
		srv := daemon.NewServer(sched, s.StateDir, metrics, logger)

		schedDone := make(chan struct{})
		go func() {
			defer close(schedDone)
			sched.Run(ctx)
		}()

		logger.Info("daemon started", "root", s.InstallRoot, "interval", s.Interval, "listen", s.Listen)
		serveErr := srv.Serve(ctx, s.Listen)
		stop()
		<-schedDone

		if serveErr != nil {
			return fmt.Errorf("running daemon: %w", serveErr)
		}
		logger.Info("daemon stopped")
		return nil
	},
}
