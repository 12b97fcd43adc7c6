package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/handoff"
	"github.com/steveyegge/panopticon/internal/heartbeat"
	"github.com/steveyegge/panopticon/internal/queue"
	"github.com/steveyegge/panopticon/internal/registry"
	"github.com/steveyegge/panopticon/internal/telemetry"
)

// TickOnce runs a single patrol synchronously. Safe to call while the
// loop is running; patrols serialize on an internal mutex.
func (s *Supervisor) TickOnce() {
	s.patrolMu.Lock()
	defer s.patrolMu.Unlock()

	ctx := context.Background()
	start := time.Now()
	s.state.PatrolCycle++

	phaseErrors := 0
	run := func(name string, fn func() error) {
		if err := fn(); err != nil {
			phaseErrors++
			s.logf("patrol %d: %s: %v", s.state.PatrolCycle, name, err)
		}
	}

	run("specialist-health", s.checkSpecialists)
	run("queue-drain", s.drainQueues)
	run("auto-suspend", s.autoSuspend)
	run("orphan-heal", s.healOrphans)
	run("lazy-detect", s.detectLazy)
	run("mass-death", s.checkMassDeath)
	run("violations", s.checkViolations)

	if err := saveState(s.fs, s.root, s.state); err != nil {
		phaseErrors++
		s.logf("patrol %d: saving state: %v", s.state.PatrolCycle, err)
	}

	telemetry.RecordPatrolCycle(ctx, s.state.PatrolCycle, phaseErrors, float64(time.Since(start).Milliseconds()))
	s.recorder.Record(events.Event{
		Type:    events.PatrolCompleted,
		Actor:   "supervisor",
		Message: fmt.Sprintf("cycle %d, %d phase errors", s.state.PatrolCycle, phaseErrors),
	})
}

// checkSpecialists pings every configured specialist: dead sessions are
// restarted, persistently unresponsive ones are force-killed and
// recreated. Kills are rate-limited per specialist by the cooldown.
func (s *Supervisor) checkSpecialists() error {
	ctx := context.Background()
	now := s.now()
	var firstErr error

	for _, sp := range s.specialists {
		// A suspended specialist is down on purpose; the drain phase
		// resumes it when work arrives.
		if s.reg.LoadRuntimeState(sp.Name).State == registry.RuntimeSuspended {
			continue
		}

		h := s.state.health(sp.Name)
		ping := now
		h.LastPingTime = &ping

		view := s.Classify(sp.Name)
		if !view.IsRunning {
			if s.inKillCooldown(h, now) {
				continue
			}
			if err := s.init.Restart(sp.Name); err != nil {
				s.logf("restarting dead specialist %s: %v", sp.Name, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			s.recorder.Record(events.Event{
				Type: events.SpecialistRestart, Actor: "supervisor", Subject: sp.Name,
				Message: "session missing, restarted",
			})
			continue
		}

		if !heartbeat.NeedsAttention(view.State) {
			h.ConsecutiveFailures = 0
			resp := now
			h.LastResponseTime = &resp
			continue
		}

		// During the cooldown after a force-kill the specialist gets a
		// grace period. The failure counter stays at zero so a second
		// kill needs a full run of fresh unresponsive observations.
		if s.inKillCooldown(h, now) {
			h.ConsecutiveFailures = 0
			continue
		}

		h.ConsecutiveFailures++
		if h.ConsecutiveFailures < s.tun.FailThreshold {
			continue
		}

		if err := s.forceKill(ctx, sp.Name, h, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Supervisor) inKillCooldown(h *SpecialistHealth, now time.Time) bool {
	return h.LastForceKillTime != nil && now.Sub(*h.LastForceKillTime) < s.tun.KillCooldown
}

// forceKill terminates an unresponsive specialist's session, records the
// death, and immediately recreates the session.
func (s *Supervisor) forceKill(ctx context.Context, name string, h *SpecialistHealth, now time.Time) error {
	killErr := s.sessions.Stop(s.reg.SessionName(name))
	kill := now
	h.LastForceKillTime = &kill
	h.ForceKillCount++
	h.ConsecutiveFailures = 0
	s.state.RecentDeaths = append(s.state.RecentDeaths, now)

	ah := s.reg.LoadHealth(name)
	ah.KillCount++
	if err := s.reg.SaveHealth(name, ah); err != nil {
		s.logf("saving health for %s: %v", name, err)
	}

	telemetry.RecordForceKill(ctx, name, h.ForceKillCount, killErr)
	s.recorder.Record(events.Event{
		Type: events.AgentKilled, Actor: "supervisor", Subject: name,
		Message: fmt.Sprintf("unresponsive after %d checks, force-killed (kill #%d)", s.tun.FailThreshold, h.ForceKillCount),
	})
	if killErr != nil {
		return fmt.Errorf("force-killing %s: %w", name, killErr)
	}
	if err := s.init.Restart(name); err != nil {
		return fmt.Errorf("restarting %s after force-kill: %w", name, err)
	}
	return nil
}

// drainQueues hands the head of each specialist's queue to the
// specialist: suspended specialists are resumed with the task as the
// wake message, idle ones are nudged in place. The item is completed
// only after successful delivery.
func (s *Supervisor) drainQueues() error {
	ctx := context.Background()
	var firstErr error

	for _, sp := range s.specialists {
		head := s.queues.PeekNext(sp.Name)
		if head == nil {
			continue
		}
		rs := s.reg.LoadRuntimeState(sp.Name)

		var deliverErr error
		switch rs.State {
		case registry.RuntimeSuspended:
			deliverErr = s.Resume(sp.Name, taskMessage(head))
		case registry.RuntimeIdle:
			deliverErr = s.init.Wake(sp.Name, taskMessage(head))
		default:
			continue
		}

		telemetry.RecordQueueDrain(ctx, sp.Name, head.ID, deliverErr)
		if deliverErr != nil {
			s.logf("draining queue for %s: %v", sp.Name, deliverErr)
			if firstErr == nil {
				firstErr = deliverErr
			}
			continue
		}
		if _, err := s.queues.Complete(sp.Name, head.ID); err != nil {
			s.logf("completing %s for %s: %v", head.ID, sp.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.markHandoffProcessing(sp.Name, head)
		s.recorder.Record(events.Event{
			Type: events.QueueDrained, Actor: "supervisor", Subject: sp.Name,
			Message: "delivered " + head.ID,
		})
	}
	return firstErr
}

// markHandoffProcessing amends queued handoff rows addressed to the
// specialist for the drained item's issue: the work is now in its
// hands. Best-effort; the drain already succeeded.
func (s *Supervisor) markHandoffProcessing(specialist string, item *queue.Item) {
	if s.handoffs == nil || item.Payload.IssueID == "" {
		return
	}
	evs, err := s.handoffs.ReadByIssue(item.Payload.IssueID)
	if err != nil {
		s.logf("reading handoffs for %s: %v", item.Payload.IssueID, err)
		return
	}
	for _, e := range evs {
		if e.ToSpecialist != specialist || e.Status != handoff.StatusQueued {
			continue
		}
		if err := s.handoffs.Append(handoff.Event{ID: e.ID, Status: handoff.StatusProcessing}); err != nil {
			s.logf("amending handoff %s: %v", e.ID, err)
		}
	}
}

// autoSuspend kills sessions of agents that have been idle past their
// class limit, preserving the provider session id for later resume.
func (s *Supervisor) autoSuspend() error {
	ctx := context.Background()
	now := s.now()
	infos, err := s.reg.List()
	if err != nil {
		return err
	}

	var firstErr error
	for _, info := range infos {
		if !info.TmuxActive {
			continue
		}
		id := info.Record.ID
		rs := s.reg.LoadRuntimeState(id)
		if rs.State != registry.RuntimeIdle || rs.LastActivity.IsZero() {
			continue
		}
		idle := now.Sub(rs.LastActivity)
		if idle <= s.idleLimit(id) {
			continue
		}

		if rs.SessionID != "" {
			if err := s.reg.SaveSessionID(id, rs.SessionID); err != nil {
				s.logf("saving session id for %s: %v", id, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		stopErr := s.sessions.Stop(s.reg.SessionName(id))
		telemetry.RecordSuspend(ctx, id, float64(idle.Milliseconds()), stopErr)
		if stopErr != nil {
			s.logf("suspending %s: %v", id, stopErr)
			if firstErr == nil {
				firstErr = stopErr
			}
			continue
		}

		rs.State = registry.RuntimeSuspended
		suspended := now
		rs.SuspendedAt = &suspended
		if err := s.reg.SaveRuntimeState(id, rs); err != nil {
			s.logf("saving runtime state for %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.recorder.Record(events.Event{
			Type: events.AgentSuspended, Actor: "supervisor", Subject: id,
			Message: fmt.Sprintf("idle %s", heartbeat.FormatAge(idle)),
		})
	}
	return firstErr
}

// healOrphans downgrades review pipeline rows that claim a specialist is
// working on them when that specialist is not active.
func (s *Supervisor) healOrphans() error {
	ctx := context.Background()
	heals, err := s.status.HealOrphans(func(specialist string) bool {
		rs := s.reg.LoadRuntimeState(specialist)
		return rs.State == registry.RuntimeActive
	})
	if err != nil {
		return err
	}
	for _, heal := range heals {
		telemetry.RecordOrphanHeal(ctx, heal.IssueID, heal.Field)
		s.recorder.Record(events.Event{
			Type: events.OrphanHealed, Actor: "supervisor", Subject: heal.IssueID,
			Message: heal.Field + " reset to pending",
		})
	}
	return nil
}

// detectLazy scans live agents' scrollback for stalling behavior and
// nudges them back to work, at most once per cooldown per agent. Agents
// whose issue is in the review pipeline are exempt; waiting is correct
// there.
func (s *Supervisor) detectLazy() error {
	ctx := context.Background()
	now := s.now()
	infos, err := s.reg.List()
	if err != nil {
		return err
	}

	for _, info := range infos {
		if !info.TmuxActive {
			continue
		}
		id := info.Record.ID
		if info.Record.IssueID != "" && s.status.InReviewPipeline(info.Record.IssueID) {
			continue
		}
		if last, ok := s.lazyLastNudge[id]; ok && now.Sub(last) < s.tun.LazyCooldown {
			continue
		}
		out, err := s.sessions.Peek(s.reg.SessionName(id), 20)
		if err != nil {
			s.logf("peeking %s: %v", id, err)
			continue
		}
		if !s.lazy.Detect(out) {
			continue
		}
		nudgeErr := s.sessions.Nudge(s.reg.SessionName(id), antiLazyMessage)
		telemetry.RecordNudge(ctx, id, "lazy", nudgeErr)
		if nudgeErr != nil {
			s.logf("nudging lazy %s: %v", id, nudgeErr)
			continue
		}
		s.lazyLastNudge[id] = now
		s.recorder.Record(events.Event{
			Type: events.AgentNudged, Actor: "supervisor", Subject: id,
			Message: "lazy behavior detected",
		})
	}
	return nil
}

// checkMassDeath raises a single alert when enough deaths cluster inside
// the detection window. The death list decays by age only, so an alert
// does not reset the count.
func (s *Supervisor) checkMassDeath() error {
	ctx := context.Background()
	now := s.now()
	s.state.pruneDeaths(now, s.tun.MassDeathWindow)

	deaths := len(s.state.RecentDeaths)
	if deaths < s.tun.MassDeathThreshold {
		return nil
	}
	if s.state.LastMassDeathAlert != nil && now.Sub(*s.state.LastMassDeathAlert) < s.tun.AlertCooldown {
		return nil
	}

	alert := now
	s.state.LastMassDeathAlert = &alert
	telemetry.RecordMassDeath(ctx, deaths, "")
	s.recorder.Record(events.Event{
		Type: events.MassDeathAlert, Actor: "supervisor",
		Message: fmt.Sprintf("%d session deaths within %s", deaths, s.tun.MassDeathWindow),
	})
	return nil
}

// checkViolations opens a hook_idle violation for every agent that sits
// on pending work without heartbeating, escalates open violations with
// increasingly pointed nudges, and resolves them when the agent comes
// back or the work clears.
func (s *Supervisor) checkViolations() error {
	ctx := context.Background()
	now := s.now()
	infos, err := s.reg.List()
	if err != nil {
		return err
	}

	m := s.viol.Load()
	changed := false

	for _, info := range infos {
		id := info.Record.ID
		view := s.Classify(id)
		hbState, age := s.hb.StateAt(id, now)
		if view.IsRunning {
			hbState, age = view.State, view.TimeSinceActivity
		}

		idle := hbState == heartbeat.StateStale || hbState == heartbeat.StateWarning || hbState == heartbeat.StateStuck
		pending := s.queues.Check(id).HasWork

		if !idle || !pending {
			if s.viol.Resolve(m, id, ViolationHookIdle, now) {
				changed = true
				s.recorder.Record(events.Event{
					Type: events.ViolationResolved, Actor: "supervisor", Subject: id,
					Message: ViolationHookIdle,
				})
			}
			continue
		}
		if age < s.tun.HookIdle {
			continue
		}

		v, opened := s.viol.Open(m, id, ViolationHookIdle, now)
		if opened {
			changed = true
			s.recorder.Record(events.Event{
				Type: events.ViolationOpened, Actor: "supervisor", Subject: id,
				Message: ViolationHookIdle,
			})
		}
		if v.NeedsHuman {
			continue
		}
		if v.NudgeCount >= s.tun.MaxNudges {
			v.NeedsHuman = true
			changed = true
			s.recorder.Record(events.Event{
				Type: events.ViolationEscalated, Actor: "supervisor", Subject: id,
				Message: fmt.Sprintf("%s: %d nudges sent, needs human", ViolationHookIdle, v.NudgeCount),
			})
			continue
		}

		n := v.NudgeCount + 1
		nudgeErr := s.sessions.Nudge(s.reg.SessionName(id), NudgeMessage(n))
		telemetry.RecordViolationNudge(ctx, id, ViolationHookIdle, n, nudgeErr)
		if nudgeErr != nil {
			s.logf("nudging violation for %s: %v", id, nudgeErr)
			continue
		}
		v.NudgeCount = n
		nudged := now
		v.LastNudgeAt = &nudged
		changed = true
		s.recorder.Record(events.Event{
			Type: events.ViolationEscalated, Actor: "supervisor", Subject: id,
			Message: fmt.Sprintf("%s: nudge %d", ViolationHookIdle, n),
		})
	}

	if !changed {
		return nil
	}
	return s.viol.Save(m)
}
