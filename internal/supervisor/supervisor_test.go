package supervisor

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

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
)

const testRoot = "/pan"

type harness struct {
	fs       *fsys.Fake
	sessions *session.Fake
	reg      *registry.Registry
	queues   *queue.Store
	status   *status.File
	hb       *heartbeat.Monitor
	handoffs *handoff.Log
	rec      *events.Fake
	sup      *Supervisor
	clock    time.Time
}

func newHarness(t *testing.T, specialists []config.Specialist, tweak func(*config.Tunables)) *harness {
	t.Helper()
	h := &harness{
		fs:       fsys.NewFake(),
		sessions: session.NewFake(),
		rec:      events.NewFake(),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	rt, err := router.NewFromConfig(config.Router{Preset: "quality"})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	h.reg = registry.New(h.fs, testRoot, "test", h.sessions, rt, h.rec)
	h.queues = queue.NewStore(h.fs, testRoot)
	h.status = status.NewFile(h.fs, testRoot)
	h.hb = heartbeat.NewMonitor(h.fs, testRoot)
	h.handoffs = handoff.NewLog(t.TempDir()) // appends hit the real filesystem

	tun := config.Defaults()
	tun.ReadyWait = 0 // no hooks run in tests
	if tweak != nil {
		tweak(&tun)
	}
	h.sup = New(Options{
		FS:          h.fs,
		Root:        testRoot,
		Sessions:    h.sessions,
		Registry:    h.reg,
		Queues:      h.queues,
		Status:      h.status,
		Heartbeats:  h.hb,
		Handoffs:    h.handoffs,
		Recorder:    h.rec,
		Tunables:    tun,
		Specialists: specialists,
		Now:         func() time.Time { return h.clock },
	})
	return h
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) startSession(t *testing.T, id string) {
	t.Helper()
	if err := h.sessions.Start(h.reg.SessionName(id), session.Config{}); err != nil {
		t.Fatalf("starting session for %s: %v", id, err)
	}
}

func (h *harness) beat(t *testing.T, id string, at time.Time) {
	t.Helper()
	if err := h.hb.Record(id, at); err != nil {
		t.Fatalf("recording heartbeat for %s: %v", id, err)
	}
}

func (h *harness) stopsOf(id string) int {
	name := h.reg.SessionName(id)
	n := 0
	for _, c := range h.sessions.CallsFor("Stop") {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (h *harness) nudgesOf(id string) []session.Call {
	name := h.reg.SessionName(id)
	var out []session.Call
	for _, c := range h.sessions.CallsFor("Nudge") {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func TestRestartDeadSpecialist(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)

	h.sup.TickOnce()

	if !h.sessions.IsRunning(h.reg.SessionName("review")) {
		t.Fatal("expected review session to be restarted")
	}
	if got := h.rec.OfType(events.SpecialistRestart); len(got) != 1 {
		t.Errorf("restart events = %d, want 1", len(got))
	}
}

func TestForceKillAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)
	h.startSession(t, "review")
	h.beat(t, "review", h.clock.Add(-20*time.Minute)) // deep in warning

	// Two unresponsive observations: below the threshold, no kill yet.
	h.sup.TickOnce()
	h.advance(30 * time.Second)
	h.sup.TickOnce()
	if got := h.stopsOf("review"); got != 0 {
		t.Fatalf("stops after 2 failures = %d, want 0", got)
	}

	// Third observation crosses the threshold.
	h.advance(30 * time.Second)
	h.sup.TickOnce()
	if got := h.stopsOf("review"); got != 1 {
		t.Fatalf("stops after 3 failures = %d, want 1", got)
	}
	if got := h.rec.OfType(events.AgentKilled); len(got) != 1 {
		t.Errorf("kill events = %d, want 1", len(got))
	}
	if !h.sessions.IsRunning(h.reg.SessionName("review")) {
		t.Error("expected review session recreated after force-kill")
	}
	if ah := h.reg.LoadHealth("review"); ah.KillCount != 1 {
		t.Errorf("health killCount = %d, want 1", ah.KillCount)
	}
	if deaths := len(h.sup.state.RecentDeaths); deaths != 1 {
		t.Errorf("recent deaths = %d, want 1", deaths)
	}
}

func TestKillCooldownRequiresFreshFailures(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)
	h.startSession(t, "review")
	h.beat(t, "review", h.clock.Add(-2*time.Hour)) // stuck forever

	// Ticks every 30s. First kill lands on the third tick (t=60s).
	for i := 0; i < 3; i++ {
		h.sup.TickOnce()
		h.advance(30 * time.Second)
	}
	if got := h.stopsOf("review"); got != 1 {
		t.Fatalf("stops after first window = %d, want 1", got)
	}

	// Everything inside the 5 minute cooldown is grace: no second kill,
	// and no failure accrual toward one.
	for h.clock.Before(time.Date(2026, 3, 1, 12, 6, 0, 0, time.UTC)) {
		h.sup.TickOnce()
		h.advance(30 * time.Second)
	}
	if got := h.stopsOf("review"); got != 1 {
		t.Fatalf("stops during cooldown = %d, want 1", got)
	}

	// After the cooldown expires, three fresh observations are needed.
	h.sup.TickOnce()
	h.advance(30 * time.Second)
	h.sup.TickOnce()
	if got := h.stopsOf("review"); got != 1 {
		t.Fatalf("stops after 2 fresh failures = %d, want 1", got)
	}
	h.advance(30 * time.Second)
	h.sup.TickOnce()
	if got := h.stopsOf("review"); got != 2 {
		t.Fatalf("stops after 3 fresh failures = %d, want 2", got)
	}
}

func TestMassDeathAlertOnceWithinCooldown(t *testing.T) {
	specs := []config.Specialist{
		{Name: "review", WorkType: "specialist-review"},
		{Name: "test", WorkType: "specialist-test"},
		{Name: "plan", WorkType: "specialist-plan"},
	}
	h := newHarness(t, specs, nil)
	for _, id := range []string{"review", "test", "plan"} {
		h.startSession(t, id)
	}
	h.beat(t, "review", h.clock.Add(-2*time.Hour))
	h.beat(t, "test", h.clock.Add(-2*time.Hour))
	h.beat(t, "plan", h.clock) // healthy

	// Both unhealthy specialists die on the third tick; two deaths in
	// the same instant trip the threshold.
	for i := 0; i < 3; i++ {
		h.sup.TickOnce()
		h.advance(30 * time.Second)
	}
	if got := h.rec.OfType(events.MassDeathAlert); len(got) != 1 {
		t.Fatalf("alerts after cluster = %d, want 1", len(got))
	}

	// Further patrols inside the alert cooldown stay quiet.
	h.sup.TickOnce()
	h.advance(30 * time.Second)
	h.sup.TickOnce()
	if got := h.rec.OfType(events.MassDeathAlert); len(got) != 1 {
		t.Errorf("alerts within cooldown = %d, want 1", len(got))
	}
}

func TestAutoSuspendIdleWorker(t *testing.T) {
	h := newHarness(t, nil, nil)
	now := h.clock
	if err := h.reg.Save(registry.AgentRecord{ID: "job-1", IssueID: "JOB-1", Status: registry.StatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "job-1")
	if err := h.reg.SaveRuntimeState("job-1", registry.RuntimeState{
		State:        registry.RuntimeIdle,
		LastActivity: now.Add(-11 * time.Minute),
		SessionID:    "sess-abc",
	}); err != nil {
		t.Fatal(err)
	}

	h.sup.TickOnce()

	if h.sessions.IsRunning(h.reg.SessionName("job-1")) {
		t.Fatal("expected idle worker session to be killed")
	}
	rs := h.reg.LoadRuntimeState("job-1")
	if rs.State != registry.RuntimeSuspended {
		t.Errorf("runtime state = %q, want suspended", rs.State)
	}
	if rs.SuspendedAt == nil {
		t.Error("suspendedAt not set")
	}
	if got := h.reg.LoadSessionID("job-1"); got != "sess-abc" {
		t.Errorf("saved session id = %q, want sess-abc", got)
	}
	if got := h.rec.OfType(events.AgentSuspended); len(got) != 1 {
		t.Errorf("suspend events = %d, want 1", len(got))
	}
}

func TestAutoSuspendRespectsClassLimits(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)
	now := h.clock

	// Worker idle 6 minutes: under the 10 minute worker limit, stays up.
	if err := h.reg.Save(registry.AgentRecord{ID: "job-1", Status: registry.StatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "job-1")
	if err := h.reg.SaveRuntimeState("job-1", registry.RuntimeState{
		State: registry.RuntimeIdle, LastActivity: now.Add(-6 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	// Specialist idle 6 minutes: over the 5 minute specialist limit.
	if err := h.reg.Save(registry.AgentRecord{ID: "review", Status: registry.StatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "review")
	h.beat(t, "review", now)
	if err := h.reg.SaveRuntimeState("review", registry.RuntimeState{
		State: registry.RuntimeIdle, LastActivity: now.Add(-6 * time.Minute), SessionID: "sess-rev",
	}); err != nil {
		t.Fatal(err)
	}

	h.sup.TickOnce()

	if !h.sessions.IsRunning(h.reg.SessionName("job-1")) {
		t.Error("worker under its idle limit should stay up")
	}
	if h.sessions.IsRunning(h.reg.SessionName("review")) {
		t.Error("specialist over its idle limit should be suspended")
	}
}

func TestDrainResumesSuspendedSpecialist(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)
	now := h.clock
	if err := h.reg.SaveRuntimeState("review", registry.RuntimeState{
		State: registry.RuntimeSuspended, LastActivity: now, SessionID: "sess-rev",
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.queues.Submit("review", queue.Item{
		ID: "q-1", Type: "task", Priority: queue.PriorityUrgent,
		Payload: queue.Payload{IssueID: "ISSUE-9"},
	}); err != nil {
		t.Fatal(err)
	}

	h.sup.TickOnce()

	starts := h.sessions.CallsFor("Start")
	var resumed bool
	for _, c := range starts {
		if c.Name == h.reg.SessionName("review") && strings.Contains(c.Config.Command, "--resume sess-rev") {
			resumed = true
		}
	}
	if !resumed {
		t.Fatal("expected session recreated with --resume sess-rev")
	}
	// The fake session never drops a ready signal, so the wake message
	// is skipped; the specialist reads its queue once the hook is up.
	if got := h.nudgesOf("review"); len(got) != 0 {
		t.Fatalf("nudges without ready signal = %v, want none", got)
	}
	if head := h.queues.PeekNext("review"); head != nil {
		t.Errorf("queue head = %v, want drained", head)
	}
	if rs := h.reg.LoadRuntimeState("review"); rs.State != registry.RuntimeActive {
		t.Errorf("runtime state = %q, want active", rs.State)
	}
	if got := h.rec.OfType(events.QueueDrained); len(got) != 1 {
		t.Errorf("drain events = %d, want 1", len(got))
	}
}

func TestDrainWakesIdleSpecialist(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "merge", WorkType: "specialist-merge"}}, nil)
	h.startSession(t, "merge")
	h.beat(t, "merge", h.clock)
	if err := h.reg.SaveRuntimeState("merge", registry.RuntimeState{
		State: registry.RuntimeIdle, LastActivity: h.clock,
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.queues.Submit("merge", queue.Item{ID: "q-7", Type: "task", Priority: queue.PriorityHigh}); err != nil {
		t.Fatal(err)
	}

	h.sup.TickOnce()

	nudges := h.nudgesOf("merge")
	if len(nudges) != 1 || !strings.Contains(nudges[0].Message, "q-7") {
		t.Fatalf("expected one wake nudge naming q-7, got %v", nudges)
	}
	if head := h.queues.PeekNext("merge"); head != nil {
		t.Errorf("queue head = %v, want drained", head)
	}
}

func TestDrainMarksHandoffProcessing(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)
	h.startSession(t, "review")
	h.beat(t, "review", h.clock)
	if err := h.reg.SaveRuntimeState("review", registry.RuntimeState{
		State: registry.RuntimeIdle, LastActivity: h.clock,
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.queues.Submit("review", queue.Item{
		ID: "q-4", Type: "task", Priority: queue.PriorityNormal,
		Payload: queue.Payload{IssueID: "ISSUE-5"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.handoffs.Append(handoff.Event{
		ID: "h-1", IssueID: "ISSUE-5", FromSpecialist: "plan", ToSpecialist: "review",
		Status: handoff.StatusQueued,
	}); err != nil {
		t.Fatal(err)
	}
	// Same issue, different recipient: not this drain's handoff.
	if err := h.handoffs.Append(handoff.Event{
		ID: "h-2", IssueID: "ISSUE-5", FromSpecialist: "plan", ToSpecialist: "merge",
		Status: handoff.StatusQueued,
	}); err != nil {
		t.Fatal(err)
	}

	h.sup.TickOnce()

	evs, err := h.handoffs.ReadByIssue("ISSUE-5")
	if err != nil {
		t.Fatalf("reading handoffs: %v", err)
	}
	byID := map[string]handoff.Event{}
	for _, e := range evs {
		byID[e.ID] = e
	}
	if got := byID["h-1"].Status; got != handoff.StatusProcessing {
		t.Errorf("h-1 status = %q, want processing", got)
	}
	if got := byID["h-2"].Status; got != handoff.StatusQueued {
		t.Errorf("h-2 status = %q, want queued", got)
	}
}

func TestLazyNudgeDebounce(t *testing.T) {
	h := newHarness(t, nil, nil)
	now := h.clock
	if err := h.reg.Save(registry.AgentRecord{ID: "job-2", IssueID: "JOB-2", Status: registry.StatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "job-2")
	h.sessions.SetPeekOutput(h.reg.SessionName("job-2"),
		"Analysis complete.\nWhat would you like me to do next?")

	h.sup.TickOnce()
	if got := h.nudgesOf("job-2"); len(got) != 1 || got[0].Message != antiLazyMessage {
		t.Fatalf("nudges after detect = %v, want one anti-lazy message", got)
	}

	// Still lazy 30 seconds later: debounced.
	h.advance(30 * time.Second)
	h.sup.TickOnce()
	if got := h.nudgesOf("job-2"); len(got) != 1 {
		t.Fatalf("nudges within cooldown = %d, want 1", len(got))
	}

	// Cooldown expired: nudge again.
	h.advance(6 * time.Minute)
	h.sup.TickOnce()
	if got := h.nudgesOf("job-2"); len(got) != 2 {
		t.Fatalf("nudges after cooldown = %d, want 2", len(got))
	}
}

func TestLazyExemptsReviewPipeline(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.reg.Save(registry.AgentRecord{ID: "job-3", IssueID: "JOB-3", Status: registry.StatusRunning, StartedAt: h.clock}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "job-3")
	h.sessions.SetPeekOutput(h.reg.SessionName("job-3"),
		"PR opened.\nShould I proceed?")
	if err := h.status.Save(map[string]status.Row{
		"JOB-3": {ReviewStatus: status.Reviewing},
	}); err != nil {
		t.Fatal(err)
	}

	h.sup.TickOnce()

	if got := h.nudgesOf("job-3"); len(got) != 0 {
		t.Errorf("nudges for in-review agent = %d, want 0", len(got))
	}
}

func TestViolationEscalationAndResolution(t *testing.T) {
	h := newHarness(t, nil, nil)
	now := h.clock
	if err := h.reg.Save(registry.AgentRecord{ID: "job-4", IssueID: "JOB-4", Status: registry.StatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "job-4")
	h.beat(t, "job-4", now.Add(-10*time.Minute)) // stale, past the hook-idle bar
	if err := h.queues.Submit("job-4", queue.Item{ID: "q-9", Type: "task", Priority: queue.PriorityNormal}); err != nil {
		t.Fatal(err)
	}

	// Three escalating nudges, then needs-human, then silence.
	for i := 0; i < 5; i++ {
		h.sup.TickOnce()
		h.advance(30 * time.Second)
	}
	nudges := h.nudgesOf("job-4")
	if len(nudges) != 3 {
		t.Fatalf("violation nudges = %d, want 3", len(nudges))
	}
	for i, want := range []string{NudgeMessage(1), NudgeMessage(2), NudgeMessage(3)} {
		if nudges[i].Message != want {
			t.Errorf("nudge %d = %q, want %q", i+1, nudges[i].Message, want)
		}
	}
	m := h.sup.viol.Load()
	v := m["job-4:"+ViolationHookIdle]
	if v == nil || !v.NeedsHuman {
		t.Fatalf("violation = %+v, want needsHuman", v)
	}
	if got := h.rec.OfType(events.ViolationOpened); len(got) != 1 {
		t.Errorf("opened events = %d, want 1", len(got))
	}

	// Work clears: the violation resolves on the next patrol.
	if _, err := h.queues.Complete("job-4", "q-9"); err != nil {
		t.Fatal(err)
	}
	h.sup.TickOnce()
	m = h.sup.viol.Load()
	if v := m["job-4:"+ViolationHookIdle]; v == nil || !v.Resolved {
		t.Fatalf("violation after work cleared = %+v, want resolved", v)
	}
	if got := h.rec.OfType(events.ViolationResolved); len(got) != 1 {
		t.Errorf("resolved events = %d, want 1", len(got))
	}
}

func TestResumeRequiresSuspendedState(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.reg.SaveRuntimeState("job-5", registry.RuntimeState{State: registry.RuntimeIdle, LastActivity: h.clock}); err != nil {
		t.Fatal(err)
	}
	if err := h.sup.Resume("job-5", "hello"); !errors.Is(err, ErrNotSuspended) {
		t.Errorf("err = %v, want ErrNotSuspended", err)
	}
}

func TestResumeRequiresSavedSessionID(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.reg.SaveRuntimeState("job-5", registry.RuntimeState{State: registry.RuntimeSuspended, LastActivity: h.clock}); err != nil {
		t.Fatal(err)
	}
	if err := h.sup.Resume("job-5", "hello"); !errors.Is(err, ErrNoSavedSession) {
		t.Errorf("err = %v, want ErrNoSavedSession", err)
	}
}

func TestResumeFallsBackToSessionIDFile(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.reg.Save(registry.AgentRecord{ID: "job-6", IssueID: "JOB-6", Runtime: "claude", Status: registry.StatusRunning, StartedAt: h.clock}); err != nil {
		t.Fatal(err)
	}
	if err := h.reg.SaveRuntimeState("job-6", registry.RuntimeState{State: registry.RuntimeSuspended, LastActivity: h.clock}); err != nil {
		t.Fatal(err)
	}
	if err := h.reg.SaveSessionID("job-6", "sess-xyz"); err != nil {
		t.Fatal(err)
	}

	if err := h.sup.Resume("job-6", "continue"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	starts := h.sessions.CallsFor("Start")
	if len(starts) != 1 || !strings.Contains(starts[0].Config.Command, "--resume sess-xyz") {
		t.Fatalf("start calls = %v, want claude --resume sess-xyz", starts)
	}
	rs := h.reg.LoadRuntimeState("job-6")
	if rs.State != registry.RuntimeActive || rs.ResumedAt == nil || rs.SuspendedAt != nil {
		t.Errorf("runtime state after resume = %+v", rs)
	}
}

func TestResumeReadyTimeoutSkipsMessage(t *testing.T) {
	h := newHarness(t, nil, func(tun *config.Tunables) {
		tun.ReadyWait = 30 * time.Millisecond
		tun.ReadyPoll = 5 * time.Millisecond
	})
	if err := h.reg.SaveRuntimeState("job-6", registry.RuntimeState{
		State: registry.RuntimeSuspended, LastActivity: h.clock, SessionID: "sess-6",
	}); err != nil {
		t.Fatal(err)
	}

	if err := h.sup.Resume("job-6", "Processing queued task q-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := h.nudgesOf("job-6"); len(got) != 0 {
		t.Fatalf("message delivered despite ready timeout: %v", got)
	}
	if rs := h.reg.LoadRuntimeState("job-6"); rs.State != registry.RuntimeActive {
		t.Errorf("runtime state = %q, want active", rs.State)
	}
}

func TestResumeDeliversMessageOnReady(t *testing.T) {
	root := t.TempDir()
	osfs := fsys.OSFS{}
	sessions := session.NewFake()
	rec := events.NewFake()
	rt, err := router.NewFromConfig(config.Router{Preset: "quality"})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	reg := registry.New(osfs, root, "test", sessions, rt, rec)
	tun := config.Defaults()
	tun.ReadyWait = 2 * time.Second
	tun.ReadyPoll = 5 * time.Millisecond
	sup := New(Options{
		FS: osfs, Root: root, Sessions: sessions, Registry: reg,
		Queues: queue.NewStore(osfs, root), Status: status.NewFile(osfs, root),
		Heartbeats: heartbeat.NewMonitor(osfs, root), Handoffs: handoff.NewLog(root),
		Recorder: rec, Tunables: tun,
	})
	if err := reg.SaveRuntimeState("job-6", registry.RuntimeState{
		State: registry.RuntimeSuspended, LastActivity: time.Now(), SessionID: "sess-6",
	}); err != nil {
		t.Fatal(err)
	}

	// Stand in for the hook: drop the ready signal once the resumed
	// session exists.
	wrote := make(chan error, 1)
	go func() {
		for len(sessions.CallsFor("Start")) == 0 {
			time.Sleep(time.Millisecond)
		}
		wrote <- os.WriteFile(reg.ReadyPath("job-6"), []byte(`{"ready": true}`), 0o644)
	}()

	if err := sup.Resume("job-6", "Processing queued task q-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := <-wrote; err != nil {
		t.Fatalf("writing ready signal: %v", err)
	}
	nudges := sessions.CallsFor("Nudge")
	if len(nudges) != 1 || nudges[0].Message != "Processing queued task q-1" {
		t.Fatalf("nudges = %v, want the queued message delivered", nudges)
	}
}

func TestRecoverCrashed(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.reg.Save(registry.AgentRecord{
		ID: "job-7", IssueID: "JOB-7", WorkspacePath: "/work/job-7",
		Runtime: "claude", Status: registry.StatusRunning, StartedAt: h.clock,
	}); err != nil {
		t.Fatal(err)
	}
	// Healthy agent with a live session: untouched.
	if err := h.reg.Save(registry.AgentRecord{ID: "job-8", IssueID: "JOB-8", Status: registry.StatusRunning, StartedAt: h.clock}); err != nil {
		t.Fatal(err)
	}
	h.startSession(t, "job-8")

	recovered, err := h.sup.RecoverCrashed()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 1 || recovered[0] != "job-7" {
		t.Fatalf("recovered = %v, want [job-7]", recovered)
	}
	if !h.sessions.IsRunning(h.reg.SessionName("job-7")) {
		t.Error("expected job-7 session recreated")
	}
	nudges := h.nudgesOf("job-7")
	if len(nudges) != 1 || !strings.Contains(nudges[0].Message, "JOB-7") {
		t.Fatalf("recovery prompt = %v, want mention of JOB-7", nudges)
	}
	if !strings.Contains(nudges[0].Message, "hook") {
		t.Errorf("recovery prompt should point at the hook, got %q", nudges[0].Message)
	}
	if hh := h.reg.LoadHealth("job-7"); hh.RecoveryCount != 1 {
		t.Errorf("recoveryCount = %d, want 1", hh.RecoveryCount)
	}
	if got := h.rec.OfType(events.AgentRecovered); len(got) != 1 {
		t.Errorf("recovered events = %d, want 1", len(got))
	}
}

func TestOrphanHealEmitsEvents(t *testing.T) {
	h := newHarness(t, []config.Specialist{{Name: "review", WorkType: "specialist-review"}}, nil)
	h.startSession(t, "review")
	h.beat(t, "review", h.clock)
	if err := h.status.Save(map[string]status.Row{
		"ISSUE-1": {ReviewStatus: status.Reviewing},
	}); err != nil {
		t.Fatal(err)
	}
	// The review specialist is not active, so the claim is an orphan.

	h.sup.TickOnce()

	rows := h.status.Load()
	if rows["ISSUE-1"].ReviewStatus != status.Pending {
		t.Errorf("review status = %q, want pending", rows["ISSUE-1"].ReviewStatus)
	}
	if got := h.rec.OfType(events.OrphanHealed); len(got) != 1 {
		t.Errorf("heal events = %d, want 1", len(got))
	}
}

func TestStartStopLifecycle(t *testing.T) {
	h := newHarness(t, nil, func(tun *config.Tunables) {
		tun.PatrolInterval = 5 * time.Millisecond
	})

	h.sup.Start()
	if !h.sup.IsRunning() {
		t.Fatal("expected running after Start")
	}
	h.sup.Start() // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	h.sup.Stop()
	if h.sup.IsRunning() {
		t.Fatal("expected stopped after Stop")
	}
	h.sup.Stop() // idempotent

	if got := h.rec.OfType(events.SupervisorStarted); len(got) != 1 {
		t.Errorf("started events = %d, want 1", len(got))
	}
	if got := h.rec.OfType(events.SupervisorStopped); len(got) != 1 {
		t.Errorf("stopped events = %d, want 1", len(got))
	}
	if got := h.rec.OfType(events.PatrolCompleted); len(got) == 0 {
		t.Error("expected at least one patrol to complete")
	}
}

func TestPatrolPersistsState(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.sup.TickOnce()
	h.sup.TickOnce()

	st := loadState(h.fs, testRoot)
	if st.PatrolCycle != 2 {
		t.Errorf("persisted patrolCycle = %d, want 2", st.PatrolCycle)
	}
}
