package session

import (
	"fmt"
	"strings"
	"sync"
)

// Fake is an in-memory [Provider] for testing. It records all calls
// (spy) and simulates session state (fake). Safe for concurrent use.
//
// When broken is true (via [NewFailFake]), all mutating operations return
// an error and IsRunning always returns false. Calls are still recorded.
type Fake struct {
	mu         sync.Mutex
	sessions   map[string]Config // live sessions
	Calls      []Call            // recorded calls in order
	broken     bool              // when true, all ops fail
	PeekOutput map[string]string // session → canned peek output
}

// Call records a single method invocation on [Fake].
type Call struct {
	Method  string // method name (e.g. "Start", "Stop", "Nudge")
	Name    string // session name argument
	Config  Config // only set for Start calls
	Message string // only set for SendText/Nudge calls
}

// NewFake returns a ready-to-use [Fake].
func NewFake() *Fake {
	return &Fake{sessions: make(map[string]Config)}
}

// NewFailFake returns a [Fake] where all operations fail and IsRunning
// always returns false. Useful for testing error paths in
// session-dependent code.
func NewFailFake() *Fake {
	return &Fake{sessions: make(map[string]Config), broken: true}
}

// Start creates a fake session. Returns an error if the name is taken.
// When broken, always returns an error.
func (f *Fake) Start(name string, cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "Start", Name: name, Config: cfg})
	if f.broken {
		return fmt.Errorf("session unavailable")
	}
	if _, exists := f.sessions[name]; exists {
		return fmt.Errorf("session %q already exists", name)
	}
	f.sessions[name] = cfg
	return nil
}

// Stop removes a fake session. Returns nil if it doesn't exist.
// When broken, always returns an error.
func (f *Fake) Stop(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "Stop", Name: name})
	if f.broken {
		return fmt.Errorf("session unavailable")
	}
	delete(f.sessions, name)
	return nil
}

// IsRunning reports whether the fake session exists.
// When broken, always returns false.
func (f *Fake) IsRunning(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "IsRunning", Name: name})
	if f.broken {
		return false
	}
	_, exists := f.sessions[name]
	return exists
}

// SendText records the call and returns nil (or an error if broken).
func (f *Fake) SendText(name, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "SendText", Name: name, Message: text})
	if f.broken {
		return fmt.Errorf("session unavailable")
	}
	return nil
}

// SendEnter records the call and returns nil (or an error if broken).
func (f *Fake) SendEnter(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "SendEnter", Name: name})
	if f.broken {
		return fmt.Errorf("session unavailable")
	}
	return nil
}

// Nudge records the call and returns nil (or an error if broken).
func (f *Fake) Nudge(name, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "Nudge", Name: name, Message: message})
	if f.broken {
		return fmt.Errorf("session unavailable")
	}
	return nil
}

// SetPeekOutput sets the canned output returned by [Fake.Peek] for the
// named session. Used in test setup.
func (f *Fake) SetPeekOutput(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PeekOutput == nil {
		f.PeekOutput = make(map[string]string)
	}
	f.PeekOutput[name] = content
}

// Peek returns canned output for the named session. Records the call.
// Returns ("", error) if broken.
func (f *Fake) Peek(name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "Peek", Name: name})
	if f.broken {
		return "", fmt.Errorf("session unavailable")
	}
	return f.PeekOutput[name], nil
}

// ListRunning returns session names matching the given prefix.
func (f *Fake) ListRunning(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "ListRunning"})
	if f.broken {
		return nil, fmt.Errorf("session unavailable")
	}
	var names []string
	for name := range f.sessions {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// CallsFor returns the recorded calls whose method matches name.
// Test helper.
func (f *Fake) CallsFor(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

var _ Provider = (*Fake)(nil)
