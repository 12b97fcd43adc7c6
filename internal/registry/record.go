// Package registry keeps the on-disk record of every tracked agent.
//
// Each agent owns a directory under agents/<id>/ holding its record,
// runtime state, activity log, saved provider session id, ready signal,
// and health counters. All writes are temp+rename; readers get a
// defaulted structure when a file is absent. The hook process writes
// runtime-state.json and ready.json; everything else is written here.
package registry

import (
	"strings"
	"time"
)

// AgentRecord status values.
const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
	StatusError    = "error"
)

// AgentRecord is the durable per-agent record at agents/<id>/state.json.
type AgentRecord struct {
	ID            string     `json:"id"`
	IssueID       string     `json:"issueId"`
	WorkspacePath string     `json:"workspacePath"`
	Runtime       string     `json:"runtime"`
	Model         string     `json:"model"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	LastActivity  *time.Time `json:"lastActivity,omitempty"`
	Phase         string     `json:"phase,omitempty"`
	WorkType      string     `json:"workType,omitempty"`
	SessionID     string     `json:"sessionId,omitempty"`
	Branch        string     `json:"branch,omitempty"`
}

// Runtime state values, written by the hook and by supervisor
// transitions.
const (
	RuntimeUninitialized = "uninitialized"
	RuntimeIdle          = "idle"
	RuntimeActive        = "active"
	RuntimeSuspended     = "suspended"
)

// RuntimeState is the hook-owned state at agents/<id>/runtime-state.json.
// The supervisor only transitions idle to suspended and suspended to
// active.
type RuntimeState struct {
	State        string     `json:"state"`
	LastActivity time.Time  `json:"lastActivity"`
	CurrentTool  string     `json:"currentTool,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	SuspendedAt  *time.Time `json:"suspendedAt,omitempty"`
	ResumedAt    *time.Time `json:"resumedAt,omitempty"`
	CurrentIssue string     `json:"currentIssue,omitempty"`
}

// Health holds per-agent failure counters at agents/<id>/health.json.
type Health struct {
	ConsecutiveFailures int `json:"consecutiveFailures"`
	KillCount           int `json:"killCount"`
	RecoveryCount       int `json:"recoveryCount"`
}

// ActivityEntry is one line of agents/<id>/activity.jsonl.
type ActivityEntry struct {
	Ts     time.Time `json:"ts"`
	Tool   string    `json:"tool"`
	Action string    `json:"action,omitempty"`
	State  string    `json:"state,omitempty"`
}

// maxActivityEntries caps the activity log length.
const maxActivityEntries = 100

// NormalizeID strips a single "agent-" prefix. Stored record ids are
// unprefixed; callers normalize once at the boundary.
func NormalizeID(id string) string {
	return strings.TrimPrefix(id, "agent-")
}
