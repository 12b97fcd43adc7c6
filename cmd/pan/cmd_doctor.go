package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/doctor"
)

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var fix, verbose bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check fleet health",
		Long: `Run diagnostic health checks on the fleet.

Checks fleet structure, config validity, model routing, binary
dependencies (tmux, the agent runtime), daemon state, specialist
sessions, orphan sessions, the event log, and the heartbeat directory.
Use --fix to attempt automatic repairs.`,
		Example: `  pan doctor
  pan doctor --fix
  pan doctor --verbose`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDoctor(fix, verbose, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "attempt to fix issues automatically")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show extra diagnostic details")
	return cmd
}

// doDoctor runs all health checks and prints results.
func doDoctor(fix, verbose bool, stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan doctor: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	d := &doctor.Doctor{}
	ctx := &doctor.CheckContext{Root: root, Verbose: verbose}

	// Core checks — always run.
	d.Register(&doctor.FleetStructureCheck{})
	d.Register(&doctor.FleetConfigCheck{})

	// Load the full app for deeper checks. If it fails, we still run the
	// core checks above (which will report the parse error).
	a, code := openApp(io.Discard, "pan doctor")
	if a != nil && code == 0 {
		d.Register(doctor.NewRouterCheck(a.cfg.Router))
	}

	// Infrastructure checks.
	if os.Getenv("PAN_RUNTIME") == "fake" {
		d.Register(doctor.NewBinaryCheck("tmux", "skipped (PAN_RUNTIME=fake)", exec.LookPath))
	} else {
		d.Register(doctor.NewBinaryCheck("tmux", "", exec.LookPath))
	}
	if a != nil {
		d.Register(doctor.NewBinaryCheck(a.cfg.Workspace.Runtime, "", exec.LookPath))
	}

	// Daemon check + session checks (gated by daemon state — a running
	// daemon restarts dead specialists itself).
	pid := readDaemonPID(root)
	daemonRunning := pid != 0 && isDaemonAlive(pid)
	d.Register(doctor.NewDaemonCheck(isDaemonAlive))

	if a != nil && !daemonRunning {
		d.Register(doctor.NewSpecialistSessionsCheck(a.cfg.Specialists, a.reg, a.sessions))
		d.Register(doctor.NewOrphanSessionsCheck(a.cfg.Specialists, a.reg, a.sessions, a.reg.SessionPrefix()))
	}

	// Data checks.
	d.Register(&doctor.EventsLogCheck{})
	d.Register(&doctor.HeartbeatDirCheck{})

	report := d.Run(ctx, stdout, fix)
	doctor.PrintSummary(stdout, report)

	if report.Failed > 0 {
		return 1
	}
	return 0
}
