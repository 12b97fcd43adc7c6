// Package session defines the interface for agent session management.
//
// Callers depend on [Provider] for lifecycle, input, and scrollback
// operations against the host terminal multiplexer. The tmux subpackage
// provides the production implementation; [Fake] provides a test double
// with spy capabilities.
package session

// Provider manages agent sessions. Implementations handle the details
// of creating, destroying, and talking to running agent processes.
//
// All operations are best-effort and individually time-bounded: an
// implementation must never block a caller for more than a couple of
// seconds per call. Errors are reported, never fatal.
type Provider interface {
	// Start creates a new detached session with the given name and
	// configuration. Returns an error if a session with that name
	// already exists.
	Start(name string, cfg Config) error

	// Stop destroys the named session and cleans up its resources.
	// Returns nil if the session does not exist (idempotent).
	Stop(name string) error

	// IsRunning reports whether the named session exists and has a
	// live process.
	IsRunning(name string) bool

	// SendText types text into the named session without a trailing
	// Enter. Best-effort: returns nil if the session doesn't exist.
	SendText(name, text string) error

	// SendEnter sends a bare Enter keypress to the named session.
	SendEnter(name string) error

	// Nudge sends a message to the named session to wake or redirect
	// the agent: text followed by Enter. Returns nil if the session
	// does not exist (best-effort).
	Nudge(name, message string) error

	// Peek captures the last N lines of output from the named session
	// without blocking it. If lines <= 0, captures all available
	// scrollback.
	Peek(name string, lines int) (string, error)

	// ListRunning returns the names of all running sessions whose names
	// have the given prefix. Used for orphan detection.
	ListRunning(prefix string) ([]string, error)
}

// Config holds the parameters for starting a new session.
type Config struct {
	// WorkDir is the working directory for the session process.
	WorkDir string

	// Command is the shell command to run in the session.
	// If empty, a default shell is started.
	Command string

	// Env is additional environment variables set in the session.
	Env map[string]string
}
