package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/panopticon/internal/events"
	"github.com/steveyegge/panopticon/internal/fsys"
	"github.com/steveyegge/panopticon/internal/router"
	"github.com/steveyegge/panopticon/internal/session"
)

// ErrSessionExists is returned by Spawn when a live session already
// holds the agent's name.
var ErrSessionExists = errors.New("session already exists")

// Registry manages agent records under a persistence root.
type Registry struct {
	fs       fsys.FS
	root     string
	fleet    string
	sessions session.Provider
	router   *router.Router
	recorder events.Recorder
}

// New returns a Registry rooted at root for the named fleet.
func New(fs fsys.FS, root, fleet string, sessions session.Provider, rt *router.Router, rec events.Recorder) *Registry {
	if rec == nil {
		rec = events.Discard
	}
	return &Registry{fs: fs, root: root, fleet: fleet, sessions: sessions, router: rt, recorder: rec}
}

// SessionName returns the multiplexer session name for an agent id.
func (r *Registry) SessionName(id string) string {
	return "pan-" + r.fleet + "-" + NormalizeID(id)
}

// SessionPrefix returns the prefix shared by all of this fleet's
// sessions. Used for orphan enumeration.
func (r *Registry) SessionPrefix() string {
	return "pan-" + r.fleet + "-"
}

func (r *Registry) agentDir(id string) string {
	return filepath.Join(r.root, "agents", NormalizeID(id))
}

func (r *Registry) statePath(id string) string {
	return filepath.Join(r.agentDir(id), "state.json")
}

func (r *Registry) runtimeStatePath(id string) string {
	return filepath.Join(r.agentDir(id), "runtime-state.json")
}

func (r *Registry) sessionIDPath(id string) string {
	return filepath.Join(r.agentDir(id), "session.id")
}

func (r *Registry) readyPath(id string) string {
	return filepath.Join(r.agentDir(id), "ready.json")
}

func (r *Registry) healthPath(id string) string {
	return filepath.Join(r.agentDir(id), "health.json")
}

func (r *Registry) activityPath(id string) string {
	return filepath.Join(r.agentDir(id), "activity.jsonl")
}

// Save replaces the agent record atomically.
func (r *Registry) Save(rec AgentRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record for %s: %w", rec.ID, err)
	}
	return fsys.WriteFileAtomic(r.fs, r.statePath(rec.ID), data, 0o644)
}

// Load reads the agent record. Returns os.ErrNotExist (wrapped) when the
// agent has no record.
func (r *Registry) Load(id string) (AgentRecord, error) {
	data, err := r.fs.ReadFile(r.statePath(id))
	if err != nil {
		return AgentRecord{}, err
	}
	var rec AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return AgentRecord{}, fmt.Errorf("parsing record for %s: %w", id, err)
	}
	return rec, nil
}

// Info joins a record with the live-session observation.
type Info struct {
	Record     AgentRecord
	TmuxActive bool
}

// List enumerates all agent records, each joined with whether its
// session is currently live. Unreadable records are skipped. Results
// are sorted by id.
func (r *Registry) List() ([]Info, error) {
	entries, err := r.fs.ReadDir(filepath.Join(r.root, "agents"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := r.Load(e.Name())
		if err != nil {
			continue // corrupt or mid-write, skip this tick
		}
		infos = append(infos, Info{
			Record:     rec,
			TmuxActive: r.sessions.IsRunning(r.SessionName(rec.ID)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Record.ID < infos[j].Record.ID })
	return infos, nil
}

// SpawnRequest describes a new agent.
type SpawnRequest struct {
	IssueID       string
	WorkspacePath string
	WorkType      string
	Runtime       string // CLI that invokes the model, e.g. "claude"
	Branch        string
}

// Spawn creates a new agent: validates no session holds the id, resolves
// the model, writes the record at starting, creates the session, then
// flips the record to running. On session failure the record is left at
// starting for operator inspection.
func (r *Registry) Spawn(req SpawnRequest) (AgentRecord, error) {
	id := NormalizeID(strings.ToLower(req.IssueID))
	name := r.SessionName(id)
	if r.sessions.IsRunning(name) {
		return AgentRecord{}, fmt.Errorf("agent %s: %w", id, ErrSessionExists)
	}

	res, err := r.router.GetModel(req.WorkType)
	if err != nil {
		return AgentRecord{}, err
	}

	rec := AgentRecord{
		ID:            id,
		IssueID:       req.IssueID,
		WorkspacePath: req.WorkspacePath,
		Runtime:       req.Runtime,
		Model:         res.Model,
		Status:        StatusStarting,
		StartedAt:     time.Now().UTC(),
		WorkType:      req.WorkType,
		Branch:        req.Branch,
	}
	if err := r.Save(rec); err != nil {
		return AgentRecord{}, err
	}

	err = r.sessions.Start(name, session.Config{
		WorkDir: req.WorkspacePath,
		Command: req.Runtime,
		Env: map[string]string{
			"PAN_AGENT": id,
			"PAN_ISSUE": req.IssueID,
			"PAN_MODEL": res.Model,
		},
	})
	if err != nil {
		// Record stays at starting so the operator can inspect.
		return rec, fmt.Errorf("starting session for %s: %w", id, err)
	}

	rec.Status = StatusRunning
	if err := r.Save(rec); err != nil {
		return rec, err
	}
	r.recorder.Record(events.Event{Type: events.AgentSpawned, Actor: "registry", Subject: id})
	return rec, nil
}

// Stop kills the agent's session and marks the record stopped.
func (r *Registry) Stop(id string) error {
	id = NormalizeID(id)
	if err := r.sessions.Stop(r.SessionName(id)); err != nil {
		return err
	}
	rec, err := r.Load(id)
	if err != nil {
		return err
	}
	rec.Status = StatusStopped
	if err := r.Save(rec); err != nil {
		return err
	}
	r.recorder.Record(events.Event{Type: events.AgentStopped, Actor: "registry", Subject: id})
	return nil
}

// Purge removes the agent's directory entirely. The session, if any,
// is stopped first.
func (r *Registry) Purge(id string) error {
	id = NormalizeID(id)
	if err := r.sessions.Stop(r.SessionName(id)); err != nil {
		return err
	}
	return r.fs.RemoveAll(r.agentDir(id))
}

// LoadRuntimeState reads the hook-owned runtime state. Absent or
// unparseable files default to uninitialized.
func (r *Registry) LoadRuntimeState(id string) RuntimeState {
	data, err := r.fs.ReadFile(r.runtimeStatePath(id))
	if err != nil {
		return RuntimeState{State: RuntimeUninitialized}
	}
	var rs RuntimeState
	if err := json.Unmarshal(data, &rs); err != nil {
		return RuntimeState{State: RuntimeUninitialized}
	}
	if rs.State == "" {
		rs.State = RuntimeUninitialized
	}
	return rs
}

// SaveRuntimeState replaces the runtime state atomically.
func (r *Registry) SaveRuntimeState(id string, rs RuntimeState) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	return fsys.WriteFileAtomic(r.fs, r.runtimeStatePath(id), data, 0o644)
}

// SaveSessionID persists the provider-side session id for later resume.
func (r *Registry) SaveSessionID(id, sessionID string) error {
	return fsys.WriteFileAtomic(r.fs, r.sessionIDPath(id), []byte(sessionID+"\n"), 0o644)
}

// LoadSessionID returns the saved provider session id, or "" when none
// was saved.
func (r *Registry) LoadSessionID(id string) string {
	data, err := r.fs.ReadFile(r.sessionIDPath(id))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ClearReady removes a stale ready signal before resume. Missing file
// is fine.
func (r *Registry) ClearReady(id string) {
	_ = r.fs.Remove(r.readyPath(id))
}

// ReadyPath returns the ready-signal path for watchers.
func (r *Registry) ReadyPath(id string) string {
	return r.readyPath(id)
}

// IsReady reports whether the hook has dropped the ready signal.
func (r *Registry) IsReady(id string) bool {
	data, err := r.fs.ReadFile(r.readyPath(id))
	if err != nil {
		return false
	}
	var sig struct {
		Ready bool `json:"ready"`
	}
	if err := json.Unmarshal(data, &sig); err != nil {
		return false
	}
	return sig.Ready
}

// LoadHealth reads the agent's health counters, defaulting to zeros.
func (r *Registry) LoadHealth(id string) Health {
	data, err := r.fs.ReadFile(r.healthPath(id))
	if err != nil {
		return Health{}
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return Health{}
	}
	return h
}

// SaveHealth replaces the health counters atomically.
func (r *Registry) SaveHealth(id string, h Health) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return fsys.WriteFileAtomic(r.fs, r.healthPath(id), data, 0o644)
}

// AppendActivity appends an entry to the activity log, keeping only the
// most recent entries.
func (r *Registry) AppendActivity(id string, entry ActivityEntry) error {
	entries := r.ReadActivity(id)
	entries = append(entries, entry)
	if len(entries) > maxActivityEntries {
		entries = entries[len(entries)-maxActivityEntries:]
	}
	var buf []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return fsys.WriteFileAtomic(r.fs, r.activityPath(id), buf, 0o644)
}

// ReadActivity returns the activity log, oldest first. Malformed lines
// are skipped.
func (r *Registry) ReadActivity(id string) []ActivityEntry {
	data, err := r.fs.ReadFile(r.activityPath(id))
	if err != nil {
		return nil
	}
	var out []ActivityEntry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e ActivityEntry
		if json.Unmarshal([]byte(line), &e) == nil {
			out = append(out, e)
		}
	}
	return out
}
