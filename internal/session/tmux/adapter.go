package tmux

import (
	"errors"
	"os"
	"os/exec"

	"github.com/steveyegge/panopticon/internal/session"
)

// Provider adapts [Tmux] to the [session.Provider] interface.
type Provider struct {
	tm *Tmux
}

// Compile-time check.
var _ session.Provider = (*Provider)(nil)

// NewProvider returns a [Provider] backed by a real tmux installation.
func NewProvider() *Provider {
	return &Provider{tm: NewTmux()}
}

// Start creates a new detached tmux session.
func (p *Provider) Start(name string, cfg session.Config) error {
	return p.tm.NewSession(name, cfg.WorkDir, cfg.Command, cfg.Env)
}

// Stop destroys the named session. Returns nil if it doesn't exist.
func (p *Provider) Stop(name string) error {
	err := p.tm.KillSession(name)
	if err != nil && (errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer)) {
		return nil // idempotent
	}
	return err
}

// IsRunning reports whether the named session exists.
func (p *Provider) IsRunning(name string) bool {
	has, err := p.tm.HasSession(name)
	return err == nil && has
}

// SendText types literal text into the named session.
func (p *Provider) SendText(name, text string) error {
	err := p.tm.SendKeys(name, text)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return nil // best-effort
	}
	return err
}

// SendEnter presses Enter in the named session.
func (p *Provider) SendEnter(name string) error {
	err := p.tm.SendEnter(name)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return nil
	}
	return err
}

// Nudge sends a message followed by Enter to the named session.
func (p *Provider) Nudge(name, message string) error {
	if err := p.SendText(name, message); err != nil {
		return err
	}
	return p.SendEnter(name)
}

// Peek captures the last lines of scrollback from the named session.
func (p *Provider) Peek(name string, lines int) (string, error) {
	return p.tm.CapturePane(name, lines)
}

// ListRunning returns running session names with the given prefix.
func (p *Provider) ListRunning(prefix string) ([]string, error) {
	all, err := p.tm.ListSessions()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range all {
		if len(n) >= len(prefix) && n[:len(prefix)] == prefix {
			names = append(names, n)
		}
	}
	return names, nil
}

// Attach connects the user's terminal to the named tmux session.
// This hands stdin/stdout/stderr to tmux and blocks until detach.
func (p *Provider) Attach(name string) error {
	cmd := exec.Command("tmux", "-u", "attach-session", "-t", name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Tmux returns the underlying [Tmux] instance for operations not part
// of the [session.Provider] interface.
func (p *Provider) Tmux() *Tmux {
	return p.tm
}
