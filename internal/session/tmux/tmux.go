// Package tmux drives the host tmux server through its CLI.
//
// Every command runs under a short context timeout so a wedged tmux
// server can never stall the supervisor's patrol. Callers treat errors
// as "not observed this tick", never as fatal.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds every tmux invocation. The supervisor budget is
// 2 s per multiplexer call.
const commandTimeout = 2 * time.Second

// ErrSessionNotFound is returned when the target session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoServer is returned when no tmux server is running at all.
var ErrNoServer = errors.New("no tmux server running")

// ErrTimeout is returned when a tmux command exceeded its time budget.
var ErrTimeout = errors.New("tmux command timed out")

// Tmux wraps the tmux CLI.
type Tmux struct {
	// bin is the tmux executable name. Overridable for tests.
	bin string
}

// NewTmux returns a Tmux driving the "tmux" binary on PATH.
func NewTmux() *Tmux {
	return &Tmux{bin: "tmux"}
}

// run executes a tmux command with the standard timeout and maps common
// failure modes to sentinel errors.
func (t *Tmux) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.bin, args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: tmux %s", ErrTimeout, args[0])
	}
	if err != nil {
		msg := strings.TrimSpace(string(out))
		switch {
		case strings.Contains(msg, "no server running"),
			strings.Contains(msg, "error connecting to"):
			return "", ErrNoServer
		case strings.Contains(msg, "can't find session"),
			strings.Contains(msg, "session not found"):
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("tmux %s: %w (%s)", args[0], err, msg)
	}
	return string(out), nil
}

// NewSession creates a detached session running the given command in dir.
// Env entries are exported inside the session before the command runs.
// Fails when a session with that name already exists.
func (t *Tmux) NewSession(name, dir, command string, env map[string]string) error {
	if has, err := t.HasSession(name); err == nil && has {
		return fmt.Errorf("session %q already exists", name)
	}

	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	if command != "" {
		args = append(args, command)
	}
	_, err := t.run(args...)
	return err
}

// KillSession destroys the named session.
func (t *Tmux) KillSession(name string) error {
	_, err := t.run("kill-session", "-t", name)
	return err
}

// HasSession reports whether the named session exists.
func (t *Tmux) HasSession(name string) (bool, error) {
	_, err := t.run("has-session", "-t", name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return false, nil
		}
		// has-session exits 1 for a missing session without a message on
		// some tmux versions; treat plain failure as "absent".
		if !errors.Is(err, ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SendKeys types literal text into the session without pressing Enter.
func (t *Tmux) SendKeys(name, text string) error {
	// -l sends the text literally so tmux key names inside the message
	// are not interpreted.
	_, err := t.run("send-keys", "-t", name, "-l", text)
	return err
}

// SendEnter presses Enter in the session.
func (t *Tmux) SendEnter(name string) error {
	_, err := t.run("send-keys", "-t", name, "Enter")
	return err
}

// CapturePane returns the last lines of scrollback for the session.
// lines <= 0 captures the whole visible history.
func (t *Tmux) CapturePane(name string, lines int) (string, error) {
	args := []string{"capture-pane", "-t", name, "-p"}
	if lines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", lines))
	}
	return t.run(args...)
}

// ListSessions returns the names of all sessions on the server.
// Returns an empty list when no server is running.
func (t *Tmux) ListSessions() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}
