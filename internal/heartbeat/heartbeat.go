// Package heartbeat classifies agent liveness from heartbeat files.
//
// Agents touch heartbeats/<id>.json as they work. The supervisor reads
// the recorded timestamp and buckets the age into a freshness state.
// Classification is pure time math; reading the file is separate so
// tests can exercise the boundaries directly.
package heartbeat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/steveyegge/panopticon/internal/fsys"
)

// Freshness thresholds. A boundary age falls into the older bucket:
// an agent exactly Stale old is stale, not active.
const (
	StaleAfter   = 5 * time.Minute
	WarningAfter = 15 * time.Minute
	StuckAfter   = 30 * time.Minute
)

// State is a heartbeat freshness bucket.
type State string

const (
	// StateActive means the agent heartbeated within the last 5 minutes.
	StateActive State = "active"
	// StateStale means 5 to 15 minutes since the last heartbeat.
	StateStale State = "stale"
	// StateWarning means 15 to 30 minutes since the last heartbeat.
	StateWarning State = "warning"
	// StateStuck means 30 minutes or more since the last heartbeat.
	StateStuck State = "stuck"
	// StateMissing means no heartbeat has ever been recorded.
	StateMissing State = "missing"
)

// Classify buckets a heartbeat age using the default thresholds.
// Negative ages (clock skew) are treated as fresh.
func Classify(age time.Duration) State {
	return ClassifyWith(age, StaleAfter, WarningAfter, StuckAfter)
}

// ClassifyWith buckets a heartbeat age against explicit thresholds.
func ClassifyWith(age, stale, warning, stuck time.Duration) State {
	switch {
	case age < stale:
		return StateActive
	case age < warning:
		return StateStale
	case age < stuck:
		return StateWarning
	default:
		return StateStuck
	}
}

// NeedsAttention reports whether the state calls for intervention.
func NeedsAttention(s State) bool {
	return s == StateWarning || s == StateStuck
}

// ShouldPoke reports whether the agent should be poked awake.
func ShouldPoke(s State) bool { return s == StateWarning }

// ShouldKill reports whether the agent's session should be killed.
func ShouldKill(s State) bool { return s == StateStuck }

// Beat is the on-disk heartbeat record.
type Beat struct {
	AgentID   string `json:"agentId"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	PID       int    `json:"pid,omitempty"`
}

// Time returns the beat's timestamp as a time.Time.
func (b Beat) Time() time.Time {
	return time.UnixMilli(b.Timestamp)
}

// Monitor reads and writes heartbeat files under a workspace root.
type Monitor struct {
	fs  fsys.FS
	dir string // <root>/heartbeats
}

// NewMonitor returns a Monitor rooted at the workspace root.
func NewMonitor(fs fsys.FS, root string) *Monitor {
	return &Monitor{fs: fs, dir: filepath.Join(root, "heartbeats")}
}

// path returns the heartbeat file for an agent id.
func (m *Monitor) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// Read returns the last recorded beat for the agent.
// Returns os.ErrNotExist (wrapped) when no heartbeat exists.
func (m *Monitor) Read(id string) (Beat, error) {
	data, err := m.fs.ReadFile(m.path(id))
	if err != nil {
		return Beat{}, err
	}
	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return Beat{}, fmt.Errorf("parsing heartbeat for %s: %w", id, err)
	}
	return b, nil
}

// Record writes a heartbeat for the agent at the given instant.
func (m *Monitor) Record(id string, now time.Time) error {
	b := Beat{AgentID: id, Timestamp: now.UnixMilli(), PID: os.Getpid()}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return fsys.WriteFileAtomic(m.fs, m.path(id), data, 0o644)
}

// StateAt classifies the agent's freshness as of now. Missing or
// unreadable heartbeat files classify as StateMissing.
func (m *Monitor) StateAt(id string, now time.Time) (State, time.Duration) {
	b, err := m.Read(id)
	if err != nil {
		return StateMissing, 0
	}
	age := now.Sub(b.Time())
	return Classify(age), age
}

// FormatAge renders a duration as its largest whole unit: seconds,
// minutes, hours, or days.
func FormatAge(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
