package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// newDaemonCmd creates the "pan daemon" command group with run, start,
// stop, status, and logs subcommands.
func newDaemonCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the patrol daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newDaemonRunCmd(stdout, stderr),
		newDaemonStartCmd(stdout, stderr),
		newDaemonStopCmd(stdout, stderr),
		newDaemonStatusCmd(stdout, stderr),
		newDaemonLogsCmd(stdout, stderr),
	)
	return cmd
}

// newDaemonRunCmd creates the "pan daemon run" subcommand — foreground
// daemon with log file output.
func newDaemonRunCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the patrol daemon in the foreground (with log file)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonRun(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doDaemonRun runs the daemon in the foreground, tee-ing output to both
// stdout and deacon/daemon.log.
func doDaemonRun(stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan daemon run")
	if a == nil {
		return code
	}

	if err := os.MkdirAll(filepath.Join(a.root, "deacon"), 0o755); err != nil {
		fmt.Fprintf(stderr, "pan daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	logPath := filepath.Join(a.root, "deacon", "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon run: opening log: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer logFile.Close() //nolint:errcheck // best-effort cleanup

	return runDaemon(a, io.MultiWriter(stdout, logFile), stderr)
}

// newDaemonStartCmd creates the "pan daemon start" subcommand —
// background fork.
func newDaemonStartCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonStart(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doDaemonStart forks a background "pan daemon run" process.
func doDaemonStart(stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	// Pre-check: try the lock to see if a daemon is already running.
	lock, err := acquireDaemonLock(root)
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	// Release immediately. The child re-acquires.
	lock.Unlock() //nolint:errcheck // releasing pre-check lock

	panPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon start: finding executable: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	child := exec.Command(panPath, "--root", root, "daemon", "run")
	child.SysProcAttr = daemonSysProcAttr()
	// Detach from parent stdio.
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil

	if err := child.Start(); err != nil {
		fmt.Fprintf(stderr, "pan daemon start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	childPID := child.Process.Pid

	// Brief pause then verify the child took the lock.
	time.Sleep(200 * time.Millisecond)
	lock2, err := acquireDaemonLock(root)
	if err == nil {
		lock2.Unlock()                                                                  //nolint:errcheck // cleanup
		fmt.Fprintf(stderr, "pan daemon start: child process failed to acquire lock\n") //nolint:errcheck // best-effort stderr
		return 1
	}

	// Verify the PID file matches the child we spawned.
	pid := readDaemonPID(root)
	if pid != 0 && pid != childPID {
		fmt.Fprintf(stderr, "pan daemon start: PID mismatch (expected %d, got %d)\n", childPID, pid) //nolint:errcheck // best-effort stderr
		return 1
	}

	fmt.Fprintf(stdout, "Daemon started (PID %d)\n", childPID) //nolint:errcheck // best-effort stdout
	return 0
}

// newDaemonStopCmd creates the "pan daemon stop" subcommand.
func newDaemonStopCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonStop(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doDaemonStop signals the running daemon to shut down via its socket.
func doDaemonStop(stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon stop: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if !tryStopDaemon(root, stdout) {
		fmt.Fprintf(stderr, "pan daemon stop: no daemon is running\n") //nolint:errcheck // best-effort stderr
		return 1
	}
	return 0
}

// newDaemonStatusCmd creates the "pan daemon status" subcommand.
func newDaemonStatusCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status (PID, uptime)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonStatus(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doDaemonStatus shows whether the daemon is running, its PID, and
// uptime.
func doDaemonStatus(stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon status: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	pid := readDaemonPID(root)
	if pid == 0 || !isDaemonAlive(pid) {
		// Clean stale PID file if present.
		if pid != 0 {
			os.Remove(daemonPIDPath(root)) //nolint:errcheck // best-effort cleanup
		}
		fmt.Fprintln(stdout, "Daemon is not running") //nolint:errcheck // best-effort stdout
		return 1
	}

	uptime := "unknown"
	if started := lastSupervisorStarted(root); !started.IsZero() {
		uptime = time.Since(started).Truncate(time.Second).String()
	}

	fmt.Fprintf(stdout, "Daemon is running (PID %d, uptime %s)\n", pid, uptime) //nolint:errcheck // best-effort stdout
	return 0
}

// newDaemonLogsCmd creates the "pan daemon logs" subcommand.
func newDaemonLogsCmd(stdout, stderr io.Writer) *cobra.Command {
	var numLines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Tail the daemon log file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonLogs(numLines, follow, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&numLines, "lines", "n", 50, "number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output")
	return cmd
}

// doDaemonLogs tails the daemon log file.
func doDaemonLogs(numLines int, follow bool, stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon logs: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	logPath := filepath.Join(root, "deacon", "daemon.log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(stderr, "pan daemon logs: log file not found: %s\n", logPath) //nolint:errcheck // best-effort stderr
		return 1
	}

	tailArgs := []string{"-n", strconv.Itoa(numLines)}
	if follow {
		tailArgs = append(tailArgs, "-f")
	}
	tailArgs = append(tailArgs, logPath)

	tailCmd := exec.Command("tail", tailArgs...)
	tailCmd.Stdout = stdout
	tailCmd.Stderr = stderr
	if err := tailCmd.Run(); err != nil {
		fmt.Fprintf(stderr, "pan daemon logs: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	return 0
}
