package main

import (
	"os"

	"github.com/steveyegge/panopticon/internal/session"
	sessiontmux "github.com/steveyegge/panopticon/internal/session/tmux"
)

// newSessionProvider returns a session.Provider based on the PAN_RUNTIME
// environment variable. This allows txtar tests to exercise
// session-dependent commands without real tmux.
//
//   - "fake" → in-memory fake (all ops succeed)
//   - "fail" → broken fake (all ops return errors)
//   - default → real tmux provider
func newSessionProvider() session.Provider {
	switch os.Getenv("PAN_RUNTIME") {
	case "fake":
		return session.NewFake()
	case "fail":
		return session.NewFailFake()
	default:
		return sessiontmux.NewProvider()
	}
}
