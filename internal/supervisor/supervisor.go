// Package supervisor implements the patrol loop that reconciles desired
// agent state against what is actually observed on the host.
//
// One patrol runs the phases in order: specialist health, queue drain,
// auto-suspend, orphan healing, lazy detection, mass-death detection,
// and violation tracking. Phases are independent; an error in one is
// logged and never aborts the rest. Patrols never overlap: a tick that
// fires while a patrol is still running is dropped.
package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/panopticon/internal/config"
	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/fsys"
	"github.com/steveyegge/panopticon/internal/handoff"
	"github.com/steveyegge/panopticon/internal/heartbeat"
	"github.com/steveyegge/panopticon/internal/queue"
	"github.com/steveyegge/panopticon/internal/registry"
	"github.com/steveyegge/panopticon/internal/session"
	"github.com/steveyegge/panopticon/internal/status"
)

// Sentinel errors for the resume path.
var (
	// ErrNotSuspended is returned when resume targets an agent that is
	// not in the suspended state.
	ErrNotSuspended = errors.New("agent is not suspended")

	// ErrNoSavedSession is returned when no provider session id was
	// preserved for the agent.
	ErrNoSavedSession = errors.New("no saved session id")
)

// Initializer (re)starts and wakes specialists. The production
// implementation creates multiplexer sessions; tests substitute a fake.
type Initializer interface {
	// Restart (re)creates the named specialist's session.
	Restart(name string) error

	// Wake sends a task message to an idle specialist's live session.
	Wake(name, message string) error
}

// Options wires a Supervisor. Zero fields get safe defaults where one
// exists.
type Options struct {
	FS         fsys.FS
	Root       string
	Sessions   session.Provider
	Registry   *registry.Registry
	Queues     *queue.Store
	Status     *status.File
	Heartbeats *heartbeat.Monitor
	Handoffs   *handoff.Log
	Recorder   events.Recorder
	Init       Initializer

	Tunables     config.Tunables
	Specialists  []config.Specialist
	LazyPatterns []string

	// Now is the injected clock; defaults to time.Now.
	Now func() time.Time

	// Logf receives patrol diagnostics; defaults to discard.
	Logf func(format string, args ...any)
}

// Supervisor owns the patrol loop and all of its cross-patrol state.
type Supervisor struct {
	fs       fsys.FS
	root     string
	sessions session.Provider
	reg      *registry.Registry
	queues   *queue.Store
	status   *status.File
	hb       *heartbeat.Monitor
	handoffs *handoff.Log
	recorder events.Recorder
	init     Initializer
	viol     *Violations

	tun         config.Tunables
	specialists []config.Specialist
	lazy        *lazyDetector

	now  func() time.Time
	logf func(format string, args ...any)

	// patrolMu guarantees patrols never run re-entrantly.
	patrolMu sync.Mutex
	state    *State

	// lazyLastNudge debounces anti-lazy messages per agent.
	lazyLastNudge map[string]time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a Supervisor and loads its persisted state.
func New(opts Options) *Supervisor {
	if opts.Recorder == nil {
		opts.Recorder = events.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}
	s := &Supervisor{
		fs:            opts.FS,
		root:          opts.Root,
		sessions:      opts.Sessions,
		reg:           opts.Registry,
		queues:        opts.Queues,
		status:        opts.Status,
		hb:            opts.Heartbeats,
		handoffs:      opts.Handoffs,
		recorder:      opts.Recorder,
		init:          opts.Init,
		viol:          NewViolations(opts.FS, opts.Root),
		tun:           opts.Tunables,
		specialists:   opts.Specialists,
		lazy:          newLazyDetector(opts.LazyPatterns),
		now:           opts.Now,
		logf:          opts.Logf,
		state:         loadState(opts.FS, opts.Root),
		lazyLastNudge: map[string]time.Time{},
	}
	if s.init == nil {
		s.init = &sessionInitializer{sup: s}
	}
	return s
}

// Start launches the patrol loop at the configured interval. A second
// Start while running is a no-op with a logged warning.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logf("supervisor already running, ignoring start")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.recorder.Record(events.Event{Type: events.SupervisorStarted, Actor: "supervisor"})
	go s.loop()
}

func (s *Supervisor) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.tun.PatrolInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.TickOnce()
			// Drop any tick that fired while the patrol ran.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// Stop halts the patrol loop and waits for an in-flight patrol to
// finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.mu.Unlock()
	<-s.done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.recorder.Record(events.Event{Type: events.SupervisorStopped, Actor: "supervisor"})
}

// IsRunning reports whether the patrol loop is active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// HealthView is the joined freshness observation for one agent.
type HealthView struct {
	State             heartbeat.State `json:"state"`
	LastActivity      *time.Time      `json:"lastActivity,omitempty"`
	TimeSinceActivity time.Duration   `json:"timeSinceActivity"`
	IsRunning         bool            `json:"isRunning"`
}

// Classify joins the session observation with heartbeat freshness.
// A missing session classifies as stuck; a live session without a
// heartbeat file classifies as active (the agent just spawned).
func (s *Supervisor) Classify(id string) HealthView {
	id = registry.NormalizeID(id)
	if !s.sessions.IsRunning(s.reg.SessionName(id)) {
		return HealthView{State: heartbeat.StateStuck, IsRunning: false}
	}
	b, err := s.hb.Read(id)
	if err != nil {
		return HealthView{State: heartbeat.StateActive, IsRunning: true}
	}
	last := b.Time()
	age := s.now().Sub(last)
	return HealthView{
		State:             heartbeat.ClassifyWith(age, s.tun.StaleAfter, s.tun.WarningAfter, s.tun.StuckAfter),
		LastActivity:      &last,
		TimeSinceActivity: age,
		IsRunning:         true,
	}
}

// isSpecialist reports whether the id names a configured specialist.
func (s *Supervisor) isSpecialist(id string) bool {
	for _, sp := range s.specialists {
		if sp.Name == id {
			return true
		}
	}
	return false
}

// idleLimit returns the auto-suspend timeout for an agent class.
func (s *Supervisor) idleLimit(id string) time.Duration {
	if s.isSpecialist(id) {
		return s.tun.SpecialistIdle
	}
	return s.tun.WorkerIdle
}

// specialistRuntime returns the CLI configured for a specialist,
// defaulting to the record's runtime or "claude".
func (s *Supervisor) specialistRuntime(name string) string {
	for _, sp := range s.specialists {
		if sp.Name == name && sp.Runtime != "" {
			return sp.Runtime
		}
	}
	if rec, err := s.reg.Load(name); err == nil && rec.Runtime != "" {
		return rec.Runtime
	}
	return "claude"
}

// sessionInitializer is the production Initializer: it recreates
// specialist sessions through the session provider.
type sessionInitializer struct {
	sup *Supervisor
}

func (si *sessionInitializer) Restart(name string) error {
	s := si.sup
	sessName := s.reg.SessionName(name)
	if s.sessions.IsRunning(sessName) {
		return nil
	}
	var workDir string
	if rec, err := s.reg.Load(name); err == nil {
		workDir = rec.WorkspacePath
	}
	return s.sessions.Start(sessName, session.Config{
		WorkDir: workDir,
		Command: s.specialistRuntime(name),
		Env:     map[string]string{"PAN_AGENT": name},
	})
}

func (si *sessionInitializer) Wake(name, message string) error {
	s := si.sup
	return s.sessions.Nudge(s.reg.SessionName(name), message)
}

// taskMessage renders the wake text for a queued item.
func taskMessage(it *queue.Item) string {
	msg := fmt.Sprintf("Process queued %s %s", it.Type, it.ID)
	if it.Payload.IssueID != "" {
		msg += " for issue " + it.Payload.IssueID
	}
	if it.Payload.Notes != "" {
		msg += ": " + it.Payload.Notes
	}
	return msg
}
