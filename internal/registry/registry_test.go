package registry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/steveyegge/panopticon/internal/config"
	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/fsys"
	"github.com/steveyegge/panopticon/internal/router"
	"github.com/steveyegge/panopticon/internal/session"
)

func newTestRegistry(t *testing.T) (*Registry, *fsys.Fake, *session.Fake) {
	t.Helper()
	fs := fsys.NewFake()
	sessions := session.NewFake()
	rt, err := router.NewFromConfig(config.Router{Preset: "quality"})
	if err != nil {
		t.Fatal(err)
	}
	reg := New(fs, "/work", "dev", sessions, rt, events.NewFake())
	return reg, fs, sessions
}

func TestNormalizeID(t *testing.T) {
	if got := NormalizeID("agent-pan-7"); got != "pan-7" {
		t.Errorf("NormalizeID = %q", got)
	}
	if got := NormalizeID("pan-7"); got != "pan-7" {
		t.Errorf("unprefixed id changed: %q", got)
	}
}

func TestSessionName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if got := reg.SessionName("agent-pan-7"); got != "pan-dev-pan-7" {
		t.Errorf("SessionName = %q", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	rec := AgentRecord{
		ID:      "pan-7",
		IssueID: "PAN-7",
		Status:  StatusRunning,
		Model:   "claude-opus-4",
	}
	if err := reg.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := reg.Load("pan-7")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.IssueID != "PAN-7" || got.Status != StatusRunning {
		t.Errorf("loaded = %+v", got)
	}
}

func TestSpawnHappyPath(t *testing.T) {
	reg, _, sessions := newTestRegistry(t)
	rec, err := reg.Spawn(SpawnRequest{
		IssueID:       "PAN-7",
		WorkspacePath: "/ws/pan-7",
		WorkType:      router.WorkImplementation,
		Runtime:       "claude",
	})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("status = %q, want running", rec.Status)
	}
	if rec.Model != "claude-opus-4" {
		t.Errorf("model = %q", rec.Model)
	}
	if !sessions.IsRunning("pan-dev-pan-7") {
		t.Error("session should be live after spawn")
	}

	// The stored record matches.
	stored, err := reg.Load("pan-7")
	if err != nil {
		t.Fatalf("Load after spawn: %v", err)
	}
	if stored.Status != StatusRunning {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestSpawnRejectsLiveSession(t *testing.T) {
	reg, _, sessions := newTestRegistry(t)
	_ = sessions.Start("pan-dev-pan-7", session.Config{})

	_, err := reg.Spawn(SpawnRequest{IssueID: "PAN-7", WorkType: router.WorkExploration})
	if !errors.Is(err, ErrSessionExists) {
		t.Errorf("got %v, want ErrSessionExists", err)
	}
}

func TestSpawnUnknownWorkTypeFailsFast(t *testing.T) {
	reg, fs, _ := newTestRegistry(t)
	_, err := reg.Spawn(SpawnRequest{IssueID: "PAN-7", WorkType: "bogus"})
	if !errors.Is(err, router.ErrUnknownWorkType) {
		t.Errorf("got %v, want ErrUnknownWorkType", err)
	}
	if _, ok := fs.Files["/work/agents/pan-7/state.json"]; ok {
		t.Error("no record should be written on routing failure")
	}
}

func TestSpawnSessionFailureLeavesStarting(t *testing.T) {
	fs := fsys.NewFake()
	rt, err := router.NewFromConfig(config.Router{})
	if err != nil {
		t.Fatal(err)
	}
	reg := New(fs, "/work", "dev", session.NewFailFake(), rt, events.Discard)

	// NewFailFake reports IsRunning false, so spawn proceeds to Start,
	// which fails.
	_, err = reg.Spawn(SpawnRequest{IssueID: "PAN-7", WorkType: router.WorkExploration})
	if err == nil {
		t.Fatal("Spawn should fail when the session cannot start")
	}
	stored, loadErr := reg.Load("pan-7")
	if loadErr != nil {
		t.Fatalf("record should exist for inspection: %v", loadErr)
	}
	if stored.Status != StatusStarting {
		t.Errorf("status = %q, want starting", stored.Status)
	}
}

func TestStopMarksStopped(t *testing.T) {
	reg, _, sessions := newTestRegistry(t)
	if _, err := reg.Spawn(SpawnRequest{IssueID: "PAN-7", WorkType: router.WorkExploration, Runtime: "claude"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Stop("pan-7"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if sessions.IsRunning("pan-dev-pan-7") {
		t.Error("session should be gone after stop")
	}
	stored, _ := reg.Load("pan-7")
	if stored.Status != StatusStopped {
		t.Errorf("status = %q, want stopped", stored.Status)
	}
}

func TestPurgeRemovesDirectory(t *testing.T) {
	reg, fs, _ := newTestRegistry(t)
	if _, err := reg.Spawn(SpawnRequest{IssueID: "PAN-7", WorkType: router.WorkExploration, Runtime: "claude"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Purge("pan-7"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if _, ok := fs.Files["/work/agents/pan-7/state.json"]; ok {
		t.Error("record should be removed by purge")
	}
}

func TestListJoinsSessionState(t *testing.T) {
	reg, fs, sessions := newTestRegistry(t)
	for _, id := range []string{"a", "b"} {
		fs.Dirs["/work/agents/"+id] = true
		rec := AgentRecord{ID: id, Status: StatusRunning}
		if err := reg.Save(rec); err != nil {
			t.Fatal(err)
		}
	}
	_ = sessions.Start("pan-dev-a", session.Config{})

	infos, err := reg.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d infos, want 2", len(infos))
	}
	if !infos[0].TmuxActive || infos[1].TmuxActive {
		t.Errorf("join wrong: %+v", infos)
	}
}

func TestListEmptyWhenNoAgentsDir(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	infos, err := reg.List()
	if err != nil || infos != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", infos, err)
	}
}

func TestRuntimeStateDefaults(t *testing.T) {
	reg, fs, _ := newTestRegistry(t)
	rs := reg.LoadRuntimeState("ghost")
	if rs.State != RuntimeUninitialized {
		t.Errorf("state = %q, want uninitialized", rs.State)
	}

	fs.Files["/work/agents/bad/runtime-state.json"] = []byte("{broken")
	if rs := reg.LoadRuntimeState("bad"); rs.State != RuntimeUninitialized {
		t.Errorf("corrupt file should default, got %q", rs.State)
	}
}

func TestRuntimeStateRoundTrip(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	now := time.Now().UTC()
	err := reg.SaveRuntimeState("alice", RuntimeState{
		State:        RuntimeSuspended,
		LastActivity: now,
		SuspendedAt:  &now,
		SessionID:    "sess-123",
	})
	if err != nil {
		t.Fatalf("SaveRuntimeState failed: %v", err)
	}
	rs := reg.LoadRuntimeState("alice")
	if rs.State != RuntimeSuspended || rs.SessionID != "sess-123" {
		t.Errorf("loaded = %+v", rs)
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if got := reg.LoadSessionID("alice"); got != "" {
		t.Errorf("missing session id = %q, want empty", got)
	}
	if err := reg.SaveSessionID("alice", "sess-123"); err != nil {
		t.Fatalf("SaveSessionID failed: %v", err)
	}
	if got := reg.LoadSessionID("alice"); got != "sess-123" {
		t.Errorf("session id = %q", got)
	}
}

func TestReadySignal(t *testing.T) {
	reg, fs, _ := newTestRegistry(t)
	if reg.IsReady("alice") {
		t.Error("missing signal should read not ready")
	}
	fs.Files["/work/agents/alice/ready.json"] = []byte(`{"ready": true}`)
	if !reg.IsReady("alice") {
		t.Error("signal present, should be ready")
	}
	reg.ClearReady("alice")
	if reg.IsReady("alice") {
		t.Error("signal should be cleared")
	}
}

func TestHealthRoundTrip(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	h := reg.LoadHealth("alice")
	if h != (Health{}) {
		t.Errorf("missing health should be zeros: %+v", h)
	}
	h.KillCount = 2
	h.RecoveryCount = 1
	if err := reg.SaveHealth("alice", h); err != nil {
		t.Fatalf("SaveHealth failed: %v", err)
	}
	if got := reg.LoadHealth("alice"); got.KillCount != 2 || got.RecoveryCount != 1 {
		t.Errorf("loaded = %+v", got)
	}
}

func TestActivityLogCapped(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	for i := 0; i < maxActivityEntries+20; i++ {
		err := reg.AppendActivity("alice", ActivityEntry{
			Ts:   time.Now().UTC(),
			Tool: fmt.Sprintf("tool-%d", i),
		})
		if err != nil {
			t.Fatalf("AppendActivity failed at %d: %v", i, err)
		}
	}
	entries := reg.ReadActivity("alice")
	if len(entries) != maxActivityEntries {
		t.Fatalf("got %d entries, want %d", len(entries), maxActivityEntries)
	}
	if entries[len(entries)-1].Tool != fmt.Sprintf("tool-%d", maxActivityEntries+19) {
		t.Errorf("last entry = %+v", entries[len(entries)-1])
	}
}
