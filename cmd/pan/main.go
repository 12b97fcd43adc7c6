// pan is the Panopticon CLI — a single-host supervisor for AI coding agents.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/config"
	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/fsys"
	"github.com/steveyegge/panopticon/internal/handoff"
	"github.com/steveyegge/panopticon/internal/heartbeat"
	"github.com/steveyegge/panopticon/internal/queue"
	"github.com/steveyegge/panopticon/internal/registry"
	"github.com/steveyegge/panopticon/internal/router"
	"github.com/steveyegge/panopticon/internal/session"
	"github.com/steveyegge/panopticon/internal/status"
	"github.com/steveyegge/panopticon/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

// rootFlag holds the value of the --root persistent flag.
// Empty means "discover from cwd."
var rootFlag string

// run executes the pan CLI with the given args, writing output to stdout
// and errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pan",
		Short:         "Panopticon — single-host supervisor for AI coding agents",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "pan: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
			return errExit
		},
	}
	root.PersistentFlags().StringVar(&rootFlag, "root", "",
		"path to the fleet directory (default: walk up from cwd)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newInitCmd(stdout, stderr),
		newDaemonCmd(stdout, stderr),
		newAgentCmd(stdout, stderr),
		newQueueCmd(stdout, stderr),
		newHandoffCmd(stdout, stderr),
		newRouteCmd(stdout, stderr),
		newStatusCmd(stdout, stderr),
		newDoctorCmd(stdout, stderr),
		newEventsCmd(stdout, stderr),
		newHeartbeatCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	root.AddCommand(newGenDocCmd(stdout, stderr, root))
	return root
}

// findRoot walks dir upward looking for a directory containing
// panopticon.toml. Returns the fleet root path or an error.
func findRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, "panopticon.toml")); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a fleet directory (no panopticon.toml found)")
		}
		dir = parent
	}
}

// resolveRoot returns the fleet root path. If --root was provided, it
// verifies panopticon.toml exists there. Otherwise falls back to
// os.Getwd() → findRoot().
func resolveRoot() (string, error) {
	if rootFlag != "" {
		p, err := filepath.Abs(rootFlag)
		if err != nil {
			return "", err
		}
		if fi, err := os.Stat(filepath.Join(p, "panopticon.toml")); err != nil || fi.IsDir() {
			return "", fmt.Errorf("not a fleet directory: %s (no panopticon.toml found)", p)
		}
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findRoot(cwd)
}

// app bundles the stores a command needs, all rooted at one fleet
// directory.
type app struct {
	root     string
	fs       fsys.FS
	cfg      *config.Fleet
	tun      config.Tunables
	sessions session.Provider
	rt       *router.Router
	rec      events.Recorder
	reg      *registry.Registry
	queues   *queue.Store
	status   *status.File
	hb       *heartbeat.Monitor
	handoffs *handoff.Log
}

// openApp locates the fleet root and wires the stores. On error it
// writes to stderr and returns nil plus an exit code.
func openApp(stderr io.Writer, cmdName string) (*app, int) {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return nil, 1
	}
	fs := fsys.OSFS{}
	cfg, err := config.Load(fs, filepath.Join(root, "panopticon.toml"))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return nil, 1
	}
	rt, err := router.NewFromConfig(cfg.Router)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return nil, 1
	}

	a := &app{
		root:     root,
		fs:       fs,
		cfg:      cfg,
		tun:      loadTunables(fs, root, cfg),
		sessions: newSessionProvider(),
		rt:       rt,
		rec:      openRecorder(root, stderr),
		queues:   queue.NewStore(fs, root),
		status:   status.NewFile(fs, root),
		hb:       heartbeat.NewMonitor(fs, root),
		handoffs: handoff.NewLog(root),
	}
	a.reg = registry.New(fs, root, a.fleetName(), a.sessions, rt, a.rec)
	return a, 0
}

// fleetName returns the configured workspace name, defaulting to the
// root directory's base name.
func (a *app) fleetName() string {
	if a.cfg.Workspace.Name != "" {
		return a.cfg.Workspace.Name
	}
	return filepath.Base(a.root)
}

// newSupervisor wires a Supervisor over the app's stores. logw receives
// patrol diagnostics.
func (a *app) newSupervisor(logw io.Writer) *supervisor.Supervisor {
	return supervisor.New(supervisor.Options{
		FS:           a.fs,
		Root:         a.root,
		Sessions:     a.sessions,
		Registry:     a.reg,
		Queues:       a.queues,
		Status:       a.status,
		Heartbeats:   a.hb,
		Handoffs:     a.handoffs,
		Recorder:     a.rec,
		Tunables:     a.tun,
		Specialists:  a.cfg.Specialists,
		LazyPatterns: a.cfg.Lazy.Patterns,
		Logf: func(format string, args ...any) {
			fmt.Fprintf(logw, format+"\n", args...) //nolint:errcheck // best-effort log
		},
	})
}

// loadTunables merges the defaults, the TOML daemon section, and the
// deacon/config.json operator overlay.
func loadTunables(fs fsys.FS, root string, cfg *config.Fleet) config.Tunables {
	tun := config.LoadTunables(fs, root)
	if cfg.Daemon.PatrolIntervalSec > 0 {
		tun.PatrolInterval = time.Duration(cfg.Daemon.PatrolIntervalSec) * time.Second
	}
	return tun
}

// openRecorder returns a Recorder that appends to logs/events.jsonl
// under the fleet root. Returns events.Discard on any error — commands
// always get a valid recorder.
func openRecorder(root string, stderr io.Writer) events.Recorder {
	dir := filepath.Join(root, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return events.Discard
	}
	rec, err := events.NewFileRecorder(filepath.Join(dir, "events.jsonl"), stderr)
	if err != nil {
		return events.Discard
	}
	return rec
}

// eventActor returns the actor identity for events. If the PAN_AGENT
// env var is set (agent session), it returns the agent name; otherwise
// "human".
func eventActor() string {
	if a := os.Getenv("PAN_AGENT"); a != "" {
		return a
	}
	return "human"
}
