package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/registry"
	"github.com/steveyegge/panopticon/internal/session"
	"github.com/steveyegge/panopticon/internal/telemetry"
)

// Resume recreates a suspended agent's session against its saved
// provider session id, waits for the hook's ready signal, then delivers
// the message. A missed ready deadline is logged, not fatal; the resume
// proceeds without a message and the agent reads its queue once the
// hook comes up.
func (s *Supervisor) Resume(id, message string) error {
	ctx := context.Background()
	id = registry.NormalizeID(id)

	rs := s.reg.LoadRuntimeState(id)
	if rs.State != registry.RuntimeSuspended {
		return fmt.Errorf("resuming %s: %w", id, ErrNotSuspended)
	}
	sessionID := rs.SessionID
	if sessionID == "" {
		sessionID = s.reg.LoadSessionID(id)
	}
	if sessionID == "" {
		return fmt.Errorf("resuming %s: %w", id, ErrNoSavedSession)
	}

	s.reg.ClearReady(id)

	runtime := "claude"
	var workDir string
	if rec, err := s.reg.Load(id); err == nil {
		if rec.Runtime != "" {
			runtime = rec.Runtime
		}
		workDir = rec.WorkspacePath
	}

	name := s.reg.SessionName(id)
	startErr := s.sessions.Start(name, session.Config{
		WorkDir: workDir,
		Command: fmt.Sprintf("%s --resume %s", runtime, sessionID),
		Env:     map[string]string{"PAN_AGENT": id},
	})
	if startErr != nil {
		telemetry.RecordResume(ctx, id, false, startErr)
		return fmt.Errorf("resuming %s: %w", id, startErr)
	}

	ready := s.waitReady(id)
	if !ready {
		s.logf("resume %s: ready signal not seen within %s, proceeding without message", id, s.tun.ReadyWait)
	} else if message != "" {
		if err := s.sessions.Nudge(name, message); err != nil {
			s.logf("resume %s: delivering message: %v", id, err)
		}
	}

	now := s.now()
	rs.State = registry.RuntimeActive
	rs.SessionID = sessionID
	rs.ResumedAt = &now
	rs.SuspendedAt = nil
	if err := s.reg.SaveRuntimeState(id, rs); err != nil {
		return fmt.Errorf("resuming %s: saving runtime state: %w", id, err)
	}

	telemetry.RecordResume(ctx, id, ready, nil)
	s.recorder.Record(events.Event{
		Type: events.AgentResumed, Actor: "supervisor", Subject: id,
		Message: fmt.Sprintf("session %s, ready=%v", sessionID, ready),
	})
	return nil
}

// waitReady polls for the hook's ready signal until the deadline. A
// filesystem watcher on the agent directory short-circuits the poll
// interval when it fires; polling remains the correctness backstop.
func (s *Supervisor) waitReady(id string) bool {
	if s.reg.IsReady(id) {
		return true
	}
	if s.tun.ReadyWait <= 0 {
		return false
	}
	deadline := time.Now().Add(s.tun.ReadyWait)

	var fsEvents chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close() //nolint:errcheck // best-effort cleanup
		if watcher.Add(filepath.Dir(s.reg.ReadyPath(id))) == nil {
			fsEvents = watcher.Events
		}
	}

	for {
		if s.reg.IsReady(id) {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		poll := s.tun.ReadyPoll
		if poll <= 0 {
			poll = time.Second
		}
		if poll > remaining {
			poll = remaining
		}
		timer := time.NewTimer(poll)
		select {
		case <-fsEvents:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RecoverCrashed finds agents whose records say running but whose
// sessions are gone, recreates their sessions, and hands each a recovery
// prompt pointing at its issue and queue. Returns the recovered ids.
func (s *Supervisor) RecoverCrashed() ([]string, error) {
	ctx := context.Background()
	infos, err := s.reg.List()
	if err != nil {
		return nil, err
	}

	var recovered []string
	var firstErr error
	for _, info := range infos {
		if info.Record.Status != registry.StatusRunning || info.TmuxActive {
			continue
		}
		id := info.Record.ID
		runtime := info.Record.Runtime
		if runtime == "" {
			runtime = "claude"
		}

		startErr := s.sessions.Start(s.reg.SessionName(id), session.Config{
			WorkDir: info.Record.WorkspacePath,
			Command: runtime,
			Env: map[string]string{
				"PAN_AGENT": id,
				"PAN_ISSUE": info.Record.IssueID,
			},
		})
		telemetry.RecordRecovery(ctx, id, startErr)
		if startErr != nil {
			s.logf("recovering %s: %v", id, startErr)
			if firstErr == nil {
				firstErr = startErr
			}
			continue
		}

		prompt := recoveryPrompt(info.Record)
		if err := s.sessions.Nudge(s.reg.SessionName(id), prompt); err != nil {
			s.logf("recovering %s: sending prompt: %v", id, err)
		}

		h := s.reg.LoadHealth(id)
		h.RecoveryCount++
		if err := s.reg.SaveHealth(id, h); err != nil {
			s.logf("recovering %s: saving health: %v", id, err)
		}

		s.recorder.Record(events.Event{
			Type: events.AgentRecovered, Actor: "supervisor", Subject: id,
			Message: fmt.Sprintf("session recreated (recovery #%d)", h.RecoveryCount),
		})
		recovered = append(recovered, id)
	}
	return recovered, firstErr
}

// recoveryPrompt renders the context message for a recovered agent.
func recoveryPrompt(rec registry.AgentRecord) string {
	msg := fmt.Sprintf("Your previous session died and has been recovered. You are working on issue %s", rec.IssueID)
	if rec.WorkspacePath != "" {
		msg += " in " + rec.WorkspacePath
	}
	msg += ". Check your hook for pending work and continue where you left off."
	return msg
}
