package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/telemetry"
)

// acquireDaemonLock takes an exclusive flock on deacon/daemon.lock.
// Returns the held lock (caller must Unlock) or an error if another
// daemon is already running.
func acquireDaemonLock(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Join(root, "deacon"), 0o755); err != nil {
		return nil, fmt.Errorf("creating deacon dir: %w", err)
	}
	lk := flock.New(filepath.Join(root, "deacon", "daemon.lock"))
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("opening daemon lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("daemon already running")
	}
	return lk, nil
}

func daemonPIDPath(root string) string {
	return filepath.Join(root, "deacon", "daemon.pid")
}

func daemonSocketPath(root string) string {
	return filepath.Join(root, "deacon", "daemon.sock")
}

// readDaemonPID reads the PID from deacon/daemon.pid. Returns 0 if the
// file is missing, empty, or unparseable.
func readDaemonPID(root string) int {
	data, err := os.ReadFile(daemonPIDPath(root))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// startDaemonSocket listens on a Unix socket at deacon/daemon.sock.
// When a client sends "stop\n", cancelFn is called to shut down the
// daemon. Returns the listener for cleanup.
func startDaemonSocket(root string, cancelFn context.CancelFunc) (net.Listener, error) {
	sockPath := daemonSocketPath(root)
	// Remove stale socket from a previous crash.
	os.Remove(sockPath) //nolint:errcheck // stale socket cleanup
	lis, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listening on daemon socket: %w", err)
	}
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return // listener closed
			}
			go handleDaemonConn(conn, cancelFn)
		}
	}()
	return lis, nil
}

// handleDaemonConn reads from a connection and calls cancelFn if the
// client sends "stop".
func handleDaemonConn(conn net.Conn, cancelFn context.CancelFunc) {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	scanner := bufio.NewScanner(conn)
	if scanner.Scan() {
		if scanner.Text() == "stop" {
			cancelFn()
			conn.Write([]byte("ok\n")) //nolint:errcheck // best-effort ack
		}
	}
}

// tryStopDaemon connects to the daemon socket and asks it to stop.
// Reports whether a daemon acknowledged.
func tryStopDaemon(root string, stdout io.Writer) bool {
	conn, err := net.DialTimeout("unix", daemonSocketPath(root), 2*time.Second)
	if err != nil {
		return false
	}
	defer conn.Close() //nolint:errcheck // best-effort cleanup

	if _, err := conn.Write([]byte("stop\n")); err != nil {
		return false
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // best-effort deadline
	scanner := bufio.NewScanner(conn)
	if scanner.Scan() && scanner.Text() == "ok" {
		fmt.Fprintln(stdout, "Daemon stopped.") //nolint:errcheck // best-effort stdout
		return true
	}
	return false
}

// runDaemon runs the patrol daemon in the foreground until signaled or
// asked to stop over the socket. Returns an exit code.
func runDaemon(a *app, logw, stderr io.Writer) int {
	lock, err := acquireDaemonLock(a.root)
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer lock.Unlock() //nolint:errcheck // best-effort cleanup

	pid := os.Getpid()
	if err := os.WriteFile(daemonPIDPath(a.root), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		fmt.Fprintf(stderr, "pan daemon: writing pid file: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer os.Remove(daemonPIDPath(a.root)) //nolint:errcheck // best-effort cleanup

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon: telemetry init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer shutdownTelemetry(context.Background()) //nolint:errcheck // best-effort flush

	// Signal handler: SIGINT/SIGTERM → cancel.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	lis, err := startDaemonSocket(a.root, cancel)
	if err != nil {
		fmt.Fprintf(stderr, "pan daemon: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer lis.Close()                          //nolint:errcheck // best-effort cleanup
	defer os.Remove(daemonSocketPath(a.root)) //nolint:errcheck // best-effort cleanup

	sup := a.newSupervisor(logw)
	telemetry.RecordSupervisorLifecycle(ctx, "started")
	fmt.Fprintf(logw, "Daemon started (PID %d, patrol every %s)\n", pid, a.tun.PatrolInterval) //nolint:errcheck // best-effort log

	// One immediate patrol, then the ticker takes over.
	sup.TickOnce()
	sup.Start()

	<-ctx.Done()
	sup.Stop()
	telemetry.RecordSupervisorLifecycle(context.Background(), "stopped")
	fmt.Fprintln(logw, "Daemon stopped.") //nolint:errcheck // best-effort log
	return 0
}

// lastSupervisorStarted scans events.jsonl for the most recent
// supervisor.started event and returns its timestamp. Returns zero time
// if not found or on error.
func lastSupervisorStarted(root string) time.Time {
	evs, err := events.ReadFiltered(
		filepath.Join(root, "logs", "events.jsonl"),
		events.Filter{Type: events.SupervisorStarted},
	)
	if err != nil || len(evs) == 0 {
		return time.Time{}
	}
	return evs[len(evs)-1].Ts
}
