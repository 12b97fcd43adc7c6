package supervisor

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/steveyegge/panopticon/internal/fsys"
)

// SpecialistHealth tracks one specialist's responsiveness across
// patrols. ConsecutiveFailures resets to zero on any responsive ping.
type SpecialistHealth struct {
	SpecialistName      string     `json:"specialistName"`
	LastPingTime        *time.Time `json:"lastPingTime,omitempty"`
	LastResponseTime    *time.Time `json:"lastResponseTime,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastForceKillTime   *time.Time `json:"lastForceKillTime,omitempty"`
	ForceKillCount      int        `json:"forceKillCount"`
}

// State is the supervisor's durable state at deacon/health-state.json.
// RecentDeaths holds only instants within the mass-death window after
// every patrol.
type State struct {
	Specialists        map[string]*SpecialistHealth `json:"specialists"`
	PatrolCycle        int                          `json:"patrolCycle"`
	RecentDeaths       []time.Time                  `json:"recentDeaths,omitempty"`
	LastMassDeathAlert *time.Time                   `json:"lastMassDeathAlert,omitempty"`
}

func statePath(root string) string {
	return filepath.Join(root, "deacon", "health-state.json")
}

// loadState reads the persisted state, defaulting to empty. Corrupt
// files read as empty; the file is preserved for forensics and simply
// replaced on the next save.
func loadState(fs fsys.FS, root string) *State {
	st := &State{Specialists: map[string]*SpecialistHealth{}}
	data, err := fs.ReadFile(statePath(root))
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, st); err != nil {
		return &State{Specialists: map[string]*SpecialistHealth{}}
	}
	if st.Specialists == nil {
		st.Specialists = map[string]*SpecialistHealth{}
	}
	return st
}

// saveState persists the state atomically.
func saveState(fs fsys.FS, root string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return fsys.WriteFileAtomic(fs, statePath(root), data, 0o644)
}

// health returns the tracked health entry for a specialist, creating it
// on first check.
func (st *State) health(name string) *SpecialistHealth {
	h, ok := st.Specialists[name]
	if !ok {
		h = &SpecialistHealth{SpecialistName: name}
		st.Specialists[name] = h
	}
	return h
}

// pruneDeaths drops recorded deaths older than the window.
func (st *State) pruneDeaths(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	var recent []time.Time
	for _, d := range st.RecentDeaths {
		if d.After(cutoff) {
			recent = append(recent, d)
		}
	}
	st.RecentDeaths = recent
}
