package updater

import (
	"fmt"
	"io"
	"time"
)

// PrintStatusBanner writes a one-line notice when the last recorded cycle
// failed, or when no cycle has finished within maxAge. It reads only the
// status file and never touches the network.
func PrintStatusBanner(w io.Writer, stateDir, cliName string, maxAge time.Duration) {
	s, err := LoadStatus(stateDir)
	if err != nil || s == nil {
		return
	}

	switch {
	case s.Outcome == OutcomeFailed:
		fmt.Fprintf(w, "\nLast update cycle failed (%s) at %s\n", s.Reason, s.FinishedAt.Local().Format(time.RFC1123))
		fmt.Fprintf(w, "    Run `%s status` for details\n\n", cliName)
	case IsStatusStale(s, maxAge):
		fmt.Fprintf(w, "\nNo update cycle has finished since %s\n", s.FinishedAt.Local().Format(time.RFC1123))
		fmt.Fprintf(w, "    Run `%s update` to check now\n\n", cliName)
	}
}
