package supervisor

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/steveyegge/panopticon/internal/fsys"
)

// Violation types.
const (
	ViolationHookIdle       = "hook_idle"
	ViolationPRStale        = "pr_stale"
	ViolationReviewPending  = "review_pending"
	ViolationStatusMismatch = "status_mismatch"
)

// Violation is a persistent record of an idle-with-pending-work
// incident. For a given (agent, type) pair at most one unresolved
// violation exists at a time.
type Violation struct {
	AgentID     string     `json:"agentId"`
	Type        string     `json:"type"`
	DetectedAt  time.Time  `json:"detectedAt"`
	NudgeCount  int        `json:"nudgeCount"`
	LastNudgeAt *time.Time `json:"lastNudgeAt,omitempty"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	NeedsHuman  bool       `json:"needsHuman,omitempty"`
}

// Violations persists the violation map at fpp-violations.json.
type Violations struct {
	fs   fsys.FS
	root string
}

// NewViolations returns a tracker rooted at the persistence root.
func NewViolations(fs fsys.FS, root string) *Violations {
	return &Violations{fs: fs, root: root}
}

func (v *Violations) path() string {
	return filepath.Join(v.root, "fpp-violations.json")
}

func key(agentID, typ string) string {
	return agentID + ":" + typ
}

// Load returns the violation map, empty when absent or unparseable.
func (v *Violations) Load() map[string]*Violation {
	data, err := v.fs.ReadFile(v.path())
	if err != nil {
		return map[string]*Violation{}
	}
	var m map[string]*Violation
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]*Violation{}
	}
	return m
}

// Save replaces the violation map atomically.
func (v *Violations) Save(m map[string]*Violation) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fsys.WriteFileAtomic(v.fs, v.path(), data, 0o644)
}

// Open returns the unresolved violation for (agent, type), creating one
// at now if none exists. The bool reports whether a new violation was
// opened.
func (v *Violations) Open(m map[string]*Violation, agentID, typ string, now time.Time) (*Violation, bool) {
	k := key(agentID, typ)
	if cur, ok := m[k]; ok && !cur.Resolved {
		return cur, false
	}
	viol := &Violation{AgentID: agentID, Type: typ, DetectedAt: now}
	m[k] = viol
	return viol, true
}

// Resolve marks the unresolved violation for (agent, type) resolved.
// Reports whether anything changed.
func (v *Violations) Resolve(m map[string]*Violation, agentID, typ string, now time.Time) bool {
	k := key(agentID, typ)
	cur, ok := m[k]
	if !ok || cur.Resolved {
		return false
	}
	cur.Resolved = true
	cur.ResolvedAt = &now
	return true
}

// ClearOld removes resolved violations older than the given age.
// Returns the number purged.
func (v *Violations) ClearOld(age time.Duration, now time.Time) (int, error) {
	m := v.Load()
	cutoff := now.Add(-age)
	purged := 0
	for k, viol := range m {
		if viol.Resolved && viol.ResolvedAt != nil && viol.ResolvedAt.Before(cutoff) {
			delete(m, k)
			purged++
		}
	}
	if purged == 0 {
		return 0, nil
	}
	return purged, v.Save(m)
}

// NudgeMessage returns the escalating message for the given nudge
// ordinal (1-based).
func NudgeMessage(n int) string {
	switch {
	case n <= 1:
		return "Status check: you have pending work on your hook. Please report your current state."
	case n == 2:
		return "Reminder: pending work is still waiting on your hook. Pick it up or report a blocker."
	default:
		return fmt.Sprintf("Act now: this is nudge %d. Process your hooked work immediately or it will be escalated to a human.", n)
	}
}
