package config

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/steveyegge/panopticon/internal/fsys"
)

// Tunables are the supervisor's timing knobs. They ship with built-in
// defaults and can be overridden per-field by deacon/config.json under
// the persistence root. Zero fields in the overlay keep the default.
type Tunables struct {
	PatrolInterval time.Duration

	// Heartbeat freshness thresholds.
	StaleAfter   time.Duration
	WarningAfter time.Duration
	StuckAfter   time.Duration

	// Force-kill discipline.
	FailThreshold int
	KillCooldown  time.Duration

	// Auto-suspend timeouts per agent class.
	SpecialistIdle time.Duration
	WorkerIdle     time.Duration

	// Resume rendezvous.
	ReadyWait time.Duration
	ReadyPoll time.Duration

	// Lazy-behavior nudging.
	LazyCooldown time.Duration

	// Mass death detection.
	MassDeathWindow    time.Duration
	MassDeathThreshold int
	AlertCooldown      time.Duration

	// Hook-idle violation tracking.
	HookIdle  time.Duration
	MaxNudges int
}

// Defaults returns the built-in tunables.
func Defaults() Tunables {
	return Tunables{
		PatrolInterval:     30 * time.Second,
		StaleAfter:         5 * time.Minute,
		WarningAfter:       15 * time.Minute,
		StuckAfter:         30 * time.Minute,
		FailThreshold:      3,
		KillCooldown:       5 * time.Minute,
		SpecialistIdle:     5 * time.Minute,
		WorkerIdle:         10 * time.Minute,
		ReadyWait:          30 * time.Second,
		ReadyPoll:          time.Second,
		LazyCooldown:       5 * time.Minute,
		MassDeathWindow:    60 * time.Second,
		MassDeathThreshold: 2,
		AlertCooldown:      5 * time.Minute,
		HookIdle:           5 * time.Minute,
		MaxNudges:          3,
	}
}

// TunablesOverlay mirrors Tunables with millisecond integers, the format
// the hook and operator tooling write to deacon/config.json.
type TunablesOverlay struct {
	PatrolIntervalMs   int64 `json:"patrolIntervalMs"`
	StaleMs            int64 `json:"staleMs"`
	WarningMs          int64 `json:"warningMs"`
	StuckMs            int64 `json:"stuckMs"`
	FailThreshold      int   `json:"failThreshold"`
	KillCooldownMs     int64 `json:"killCooldownMs"`
	SpecialistIdleMs   int64 `json:"specialistIdleMs"`
	WorkerIdleMs       int64 `json:"workerIdleMs"`
	ReadyWaitMs        int64 `json:"readyWaitMs"`
	ReadyPollMs        int64 `json:"readyPollMs"`
	LazyCooldownMs     int64 `json:"lazyCooldownMs"`
	MassDeathWindowMs  int64 `json:"massDeathWindowMs"`
	MassDeathThreshold int   `json:"massDeathThreshold"`
	AlertCooldownMs    int64 `json:"alertCooldownMs"`
	HookIdleMs         int64 `json:"hookIdleMs"`
	MaxNudges          int   `json:"maxNudges"`
}

// LoadTunables returns Defaults overlaid with any fields present in
// <root>/deacon/config.json. A missing or unparseable overlay returns
// the defaults unchanged.
func LoadTunables(fs fsys.FS, root string) Tunables {
	t := Defaults()
	data, err := fs.ReadFile(filepath.Join(root, "deacon", "config.json"))
	if err != nil {
		return t
	}
	var o TunablesOverlay
	if err := json.Unmarshal(data, &o); err != nil {
		return t
	}

	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	if o.PatrolIntervalMs > 0 {
		t.PatrolInterval = ms(o.PatrolIntervalMs)
	}
	if o.StaleMs > 0 {
		t.StaleAfter = ms(o.StaleMs)
	}
	if o.WarningMs > 0 {
		t.WarningAfter = ms(o.WarningMs)
	}
	if o.StuckMs > 0 {
		t.StuckAfter = ms(o.StuckMs)
	}
	if o.FailThreshold > 0 {
		t.FailThreshold = o.FailThreshold
	}
	if o.KillCooldownMs > 0 {
		t.KillCooldown = ms(o.KillCooldownMs)
	}
	if o.SpecialistIdleMs > 0 {
		t.SpecialistIdle = ms(o.SpecialistIdleMs)
	}
	if o.WorkerIdleMs > 0 {
		t.WorkerIdle = ms(o.WorkerIdleMs)
	}
	if o.ReadyWaitMs > 0 {
		t.ReadyWait = ms(o.ReadyWaitMs)
	}
	if o.ReadyPollMs > 0 {
		t.ReadyPoll = ms(o.ReadyPollMs)
	}
	if o.LazyCooldownMs > 0 {
		t.LazyCooldown = ms(o.LazyCooldownMs)
	}
	if o.MassDeathWindowMs > 0 {
		t.MassDeathWindow = ms(o.MassDeathWindowMs)
	}
	if o.MassDeathThreshold > 0 {
		t.MassDeathThreshold = o.MassDeathThreshold
	}
	if o.AlertCooldownMs > 0 {
		t.AlertCooldown = ms(o.AlertCooldownMs)
	}
	if o.HookIdleMs > 0 {
		t.HookIdle = ms(o.HookIdleMs)
	}
	if o.MaxNudges > 0 {
		t.MaxNudges = o.MaxNudges
	}
	return t
}
