package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/heartbeat"
)

// newStatusCmd creates the "pan status" command — a one-screen fleet
// overview.
func newStatusCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show fleet status: daemon, specialists, agents, review pipeline",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doStatus(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doStatus(stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan status")
	if a == nil {
		return code
	}
	sup := a.newSupervisor(stderr)

	fmt.Fprintf(stdout, "Fleet: %s\n", a.fleetName()) //nolint:errcheck // best-effort stdout
	if pid := readDaemonPID(a.root); pid != 0 && isDaemonAlive(pid) {
		fmt.Fprintf(stdout, "Daemon: running (PID %d)\n", pid) //nolint:errcheck // best-effort stdout
	} else {
		fmt.Fprintln(stdout, "Daemon: not running") //nolint:errcheck // best-effort stdout
	}

	if len(a.cfg.Specialists) > 0 {
		fmt.Fprintln(stdout, "\nSpecialists:") //nolint:errcheck // best-effort stdout
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		for _, sp := range a.cfg.Specialists {
			view := sup.Classify(sp.Name)
			sess := "down"
			if view.IsRunning {
				sess = "live"
			}
			pending := a.queues.Check(sp.Name)
			work := "idle"
			if pending.HasWork {
				work = fmt.Sprintf("%d queued", len(pending.Items))
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", sp.Name, sess, view.State, work) //nolint:errcheck // best-effort stdout
		}
		tw.Flush() //nolint:errcheck // best-effort stdout
	}

	infos, err := a.reg.List()
	if err != nil {
		fmt.Fprintf(stderr, "pan status: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	var workers int
	for _, info := range infos {
		if !isSpecialistName(a, info.Record.ID) {
			workers++
		}
	}
	fmt.Fprintf(stdout, "\nAgents: %d tracked (%d workers)\n", len(infos), workers) //nolint:errcheck // best-effort stdout

	rows := a.status.Load()
	if len(rows) > 0 {
		issues := make([]string, 0, len(rows))
		for issue := range rows {
			issues = append(issues, issue)
		}
		sort.Strings(issues)
		fmt.Fprintln(stdout, "\nReview pipeline:") //nolint:errcheck // best-effort stdout
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  ISSUE\tREVIEW\tTEST\tMERGE") //nolint:errcheck // best-effort stdout
		for _, issue := range issues {
			row := rows[issue]
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", issue, //nolint:errcheck // best-effort stdout
				orDash(row.ReviewStatus), orDash(row.TestStatus), orDash(row.MergeStatus))
		}
		tw.Flush() //nolint:errcheck // best-effort stdout
	}

	if started := lastSupervisorStarted(a.root); !started.IsZero() {
		fmt.Fprintf(stdout, "\nLast daemon start: %s ago\n", //nolint:errcheck // best-effort stdout
			heartbeat.FormatAge(time.Since(started)))
	}
	return 0
}

func isSpecialistName(a *app, id string) bool {
	for _, sp := range a.cfg.Specialists {
		if sp.Name == id {
			return true
		}
	}
	return false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
