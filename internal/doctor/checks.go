package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/steveyegge/panopticon/internal/config"
	"github.com/steveyegge/panopticon/internal/fsys"
	"github.com/steveyegge/panopticon/internal/registry"
	"github.com/steveyegge/panopticon/internal/router"
	"github.com/steveyegge/panopticon/internal/session"
)

// fleetSubdirs are the directories a fleet root is expected to carry.
var fleetSubdirs = []string{"agents", "hooks", "heartbeats", "deacon", "logs"}

// --- Core checks ---

// FleetStructureCheck verifies panopticon.toml and the fleet subdirs exist.
type FleetStructureCheck struct{}

// Name returns the check identifier.
func (c *FleetStructureCheck) Name() string { return "fleet-structure" }

// Run checks that the fleet directory has the expected structure.
func (c *FleetStructureCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if _, err := os.Stat(filepath.Join(ctx.Root, "panopticon.toml")); err != nil {
		r.Status = StatusError
		r.Message = "panopticon.toml missing"
		r.FixHint = "run pan init to create the fleet"
		return r
	}
	var missing []string
	for _, sub := range fleetSubdirs {
		if fi, err := os.Stat(filepath.Join(ctx.Root, sub)); err != nil || !fi.IsDir() {
			missing = append(missing, sub+"/")
		}
	}
	if len(missing) > 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d fleet subdirectories missing", len(missing))
		r.Details = missing
		return r
	}
	r.Status = StatusOK
	r.Message = "panopticon.toml and fleet subdirectories present"
	return r
}

// CanFix returns true — missing subdirectories can be recreated.
func (c *FleetStructureCheck) CanFix() bool { return true }

// Fix recreates any missing fleet subdirectories.
func (c *FleetStructureCheck) Fix(ctx *CheckContext) error {
	for _, sub := range fleetSubdirs {
		if err := os.MkdirAll(filepath.Join(ctx.Root, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// FleetConfigCheck verifies panopticon.toml parses and workspace.name is set.
type FleetConfigCheck struct{}

// Name returns the check identifier.
func (c *FleetConfigCheck) Name() string { return "fleet-config" }

// Run parses panopticon.toml and checks workspace.name.
func (c *FleetConfigCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	cfg, err := config.Load(fsys.OSFS{}, filepath.Join(ctx.Root, "panopticon.toml"))
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("panopticon.toml parse error: %v", err)
		return r
	}
	if cfg.Workspace.Name == "" {
		r.Status = StatusError
		r.Message = "workspace.name not set"
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("panopticon.toml loaded (%d specialists)", len(cfg.Specialists))
	return r
}

// CanFix returns false.
func (c *FleetConfigCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *FleetConfigCheck) Fix(_ *CheckContext) error { return nil }

// RouterCheck verifies the routing config resolves: known preset, known
// override models, valid fallback.
type RouterCheck struct {
	cfg config.Router
}

// NewRouterCheck creates a check that validates the routing table.
func NewRouterCheck(cfg config.Router) *RouterCheck {
	return &RouterCheck{cfg: cfg}
}

// Name returns the check identifier.
func (c *RouterCheck) Name() string { return "router-config" }

// Run builds a router from the config and resolves every work type.
func (c *RouterCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	rt, err := router.NewFromConfig(c.cfg)
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("router config: %v", err)
		return r
	}
	var fallbacks []string
	for _, wt := range router.WorkTypes() {
		res, err := rt.GetModel(wt)
		if err != nil {
			r.Status = StatusError
			r.Message = fmt.Sprintf("resolving %s: %v", wt, err)
			return r
		}
		if res.UsedFallback {
			fallbacks = append(fallbacks, fmt.Sprintf("%s: %s -> %s", wt, res.OriginalModel, res.Model))
		}
	}
	if len(fallbacks) > 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d work type(s) falling back to anthropic", len(fallbacks))
		r.Details = fallbacks
		r.FixHint = "enable the wanted providers in [router] or accept the fallback"
		return r
	}
	r.Status = StatusOK
	r.Message = "all work types resolve"
	return r
}

// CanFix returns false.
func (c *RouterCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *RouterCheck) Fix(_ *CheckContext) error { return nil }

// --- Infrastructure checks ---

// LookPathFunc is the function used to find binaries. Defaults to exec.LookPath.
// Tests can override this.
type LookPathFunc func(file string) (string, error)

// BinaryCheck verifies a binary is on PATH.
type BinaryCheck struct {
	binary   string
	skipMsg  string // non-empty means skip with OK + this message
	lookPath LookPathFunc
}

// NewBinaryCheck creates a check for the given binary.
// If skipMsg is non-empty, the check returns OK with that message (used when
// the binary is not needed due to env config like PAN_RUNTIME=fake).
func NewBinaryCheck(binary string, skipMsg string, lp LookPathFunc) *BinaryCheck {
	if lp == nil {
		lp = exec.LookPath
	}
	return &BinaryCheck{binary: binary, skipMsg: skipMsg, lookPath: lp}
}

// Name returns the check identifier.
func (c *BinaryCheck) Name() string { return c.binary + "-binary" }

// Run checks if the binary is on PATH.
func (c *BinaryCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if c.skipMsg != "" {
		r.Status = StatusOK
		r.Message = c.skipMsg
		return r
	}
	path, err := c.lookPath(c.binary)
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("%s not found in PATH", c.binary)
		r.FixHint = fmt.Sprintf("install %s and ensure it's in PATH", c.binary)
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("found %s", path)
	return r
}

// CanFix returns false.
func (c *BinaryCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *BinaryCheck) Fix(_ *CheckContext) error { return nil }

// PIDAliveFunc reports whether a PID belongs to a live process.
// Tests can override this.
type PIDAliveFunc func(pid int) bool

// DaemonCheck inspects the daemon PID file under deacon/.
type DaemonCheck struct {
	alive PIDAliveFunc
}

// NewDaemonCheck creates a check for daemon liveness and stale PID files.
func NewDaemonCheck(alive PIDAliveFunc) *DaemonCheck {
	return &DaemonCheck{alive: alive}
}

// Name returns the check identifier.
func (c *DaemonCheck) Name() string { return "daemon" }

// Run reports the daemon state: running, not running, or stale PID file.
func (c *DaemonCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	data, err := os.ReadFile(filepath.Join(ctx.Root, "deacon", "daemon.pid"))
	if err != nil {
		r.Status = StatusOK
		r.Message = "daemon not running"
		return r
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		r.Status = StatusWarning
		r.Message = "daemon PID file is corrupt"
		return r
	}
	if c.alive(pid) {
		r.Status = StatusOK
		r.Message = fmt.Sprintf("daemon running (PID %d)", pid)
		return r
	}
	r.Status = StatusWarning
	r.Message = fmt.Sprintf("stale daemon PID file (PID %d is dead)", pid)
	return r
}

// CanFix returns true — a stale or corrupt PID file can be removed.
func (c *DaemonCheck) CanFix() bool { return true }

// Fix removes the PID file.
func (c *DaemonCheck) Fix(ctx *CheckContext) error {
	return os.Remove(filepath.Join(ctx.Root, "deacon", "daemon.pid"))
}

// --- Session checks (skipped when the daemon is running) ---

// SpecialistSessionsCheck verifies non-suspended specialists have live
// sessions. Suspended specialists are down on purpose and skipped.
type SpecialistSessionsCheck struct {
	specialists []config.Specialist
	reg         *registry.Registry
	sp          session.Provider
}

// NewSpecialistSessionsCheck creates a check for specialist session liveness.
func NewSpecialistSessionsCheck(specialists []config.Specialist, reg *registry.Registry, sp session.Provider) *SpecialistSessionsCheck {
	return &SpecialistSessionsCheck{specialists: specialists, reg: reg, sp: sp}
}

// Name returns the check identifier.
func (c *SpecialistSessionsCheck) Name() string { return "specialist-sessions" }

// Run checks that each non-suspended specialist has a live session.
func (c *SpecialistSessionsCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	var missing []string
	for _, sp := range c.specialists {
		if c.reg.LoadRuntimeState(sp.Name).State == registry.RuntimeSuspended {
			continue
		}
		if !c.sp.IsRunning(c.reg.SessionName(sp.Name)) {
			missing = append(missing, sp.Name)
		}
	}
	if len(missing) == 0 {
		r.Status = StatusOK
		r.Message = "all specialist sessions live"
		return r
	}
	r.Status = StatusWarning
	r.Message = fmt.Sprintf("%d specialist(s) without sessions", len(missing))
	r.Details = missing
	r.FixHint = "the daemon restarts dead specialists on its next patrol"
	return r
}

// CanFix returns false.
func (c *SpecialistSessionsCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *SpecialistSessionsCheck) Fix(_ *CheckContext) error { return nil }

// OrphanSessionsCheck finds live sessions under the fleet prefix that no
// registered agent or configured specialist accounts for.
type OrphanSessionsCheck struct {
	specialists []config.Specialist
	reg         *registry.Registry
	sp          session.Provider
	prefix      string
}

// NewOrphanSessionsCheck creates a check for unaccounted fleet sessions.
func NewOrphanSessionsCheck(specialists []config.Specialist, reg *registry.Registry, sp session.Provider, prefix string) *OrphanSessionsCheck {
	return &OrphanSessionsCheck{specialists: specialists, reg: reg, sp: sp, prefix: prefix}
}

// Name returns the check identifier.
func (c *OrphanSessionsCheck) Name() string { return "orphan-sessions" }

// Run lists fleet-prefixed sessions and flags those without an owner.
func (c *OrphanSessionsCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	names, err := c.sp.ListRunning(c.prefix)
	if err != nil {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("listing sessions: %v", err)
		return r
	}

	known := make(map[string]bool)
	for _, sp := range c.specialists {
		known[c.reg.SessionName(sp.Name)] = true
	}
	if infos, err := c.reg.List(); err == nil {
		for _, info := range infos {
			known[c.reg.SessionName(info.Record.ID)] = true
		}
	}

	var orphans []string
	for _, name := range names {
		if !known[name] {
			orphans = append(orphans, name)
		}
	}
	if len(orphans) == 0 {
		r.Status = StatusOK
		r.Message = "no orphan sessions"
		return r
	}
	r.Status = StatusWarning
	r.Message = fmt.Sprintf("%d session(s) with no registered owner", len(orphans))
	r.Details = orphans
	r.FixHint = "kill the sessions or re-register their agents"
	return r
}

// CanFix returns false.
func (c *OrphanSessionsCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *OrphanSessionsCheck) Fix(_ *CheckContext) error { return nil }

// --- Data checks ---

// EventsLogCheck verifies logs/events.jsonl is parseable.
type EventsLogCheck struct{}

// Name returns the check identifier.
func (c *EventsLogCheck) Name() string { return "events-log" }

// Run parses the event log line by line and counts corrupt entries.
func (c *EventsLogCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	data, err := os.ReadFile(filepath.Join(ctx.Root, "logs", "events.jsonl"))
	if err != nil {
		r.Status = StatusOK
		r.Message = "no event log yet"
		return r
	}
	var total, corrupt int
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if !json.Valid([]byte(line)) {
			corrupt++
		}
	}
	if corrupt > 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d of %d event log lines are corrupt", corrupt, total)
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("event log OK (%d events)", total)
	return r
}

// CanFix returns false.
func (c *EventsLogCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *EventsLogCheck) Fix(_ *CheckContext) error { return nil }

// HeartbeatDirCheck verifies the heartbeats directory exists and is
// writable. Agents whose hooks cannot write heartbeats all read as stuck.
type HeartbeatDirCheck struct{}

// Name returns the check identifier.
func (c *HeartbeatDirCheck) Name() string { return "heartbeat-dir" }

// Run stats the heartbeats directory and probes writability.
func (c *HeartbeatDirCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	dir := filepath.Join(ctx.Root, "heartbeats")
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		r.Status = StatusError
		r.Message = "heartbeats/ directory missing"
		return r
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("heartbeats/ not writable: %v", err)
		return r
	}
	_ = os.Remove(probe)
	r.Status = StatusOK
	r.Message = "heartbeats/ writable"
	return r
}

// CanFix returns true — a missing directory can be recreated.
func (c *HeartbeatDirCheck) CanFix() bool { return true }

// Fix recreates the heartbeats directory.
func (c *HeartbeatDirCheck) Fix(ctx *CheckContext) error {
	return os.MkdirAll(filepath.Join(ctx.Root, "heartbeats"), 0o755)
}
