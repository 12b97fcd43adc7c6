// Package events provides tier-0 observability for Panopticon.
//
// Events are simple, synchronous, append-only records of what happened.
// The recorder writes JSON lines to logs/events.jsonl; the reader scans
// them back. Recording is best-effort: errors are logged to stderr but
// never returned to callers.
package events

import "time"

// Event type constants. Only types we actually emit today.
const (
	SupervisorStarted  = "supervisor.started"
	SupervisorStopped  = "supervisor.stopped"
	PatrolCompleted    = "patrol.completed"
	AgentSpawned       = "agent.spawned"
	AgentStopped       = "agent.stopped"
	AgentKilled        = "agent.killed"
	AgentSuspended     = "agent.suspended"
	AgentResumed       = "agent.resumed"
	AgentRecovered     = "agent.recovered"
	AgentNudged        = "agent.nudged"
	SpecialistRestart  = "specialist.restarted"
	QueueDrained       = "queue.drained"
	OrphanHealed       = "orphan.healed"
	MassDeathAlert     = "massdeath.alert"
	ViolationOpened    = "violation.opened"
	ViolationEscalated = "violation.escalated"
	ViolationResolved  = "violation.resolved"
)

// Event is a single recorded occurrence in the system.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    string    `json:"type"`
	Ts      time.Time `json:"ts"`
	Actor   string    `json:"actor"`
	Subject string    `json:"subject,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Recorder records events. Safe for concurrent use. Best-effort.
type Recorder interface {
	Record(e Event)
}

// Discard silently drops all events.
var Discard Recorder = discardRecorder{}

type discardRecorder struct{}

func (discardRecorder) Record(Event) {}
