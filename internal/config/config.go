// Package config handles loading and parsing panopticon.toml files.
package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/steveyegge/panopticon/internal/fsys"
)

// Fleet is the top-level configuration for a Panopticon instance.
type Fleet struct {
	Workspace   Workspace    `toml:"workspace"`
	Router      Router       `toml:"router,omitempty"`
	Daemon      Daemon       `toml:"daemon,omitempty"`
	Specialists []Specialist `toml:"specialists"`
	Lazy        Lazy         `toml:"lazy,omitempty"`
}

// Workspace holds fleet-level metadata and defaults that apply to all
// agents unless overridden per-agent.
type Workspace struct {
	Name    string `toml:"name"`
	Runtime string `toml:"runtime,omitempty"` // CLI that invokes the model, default "claude"
}

// Router holds work-type routing settings. Providers maps provider name
// to enabled; anthropic is always treated as enabled regardless of this
// map. APIKeys enables a provider when its key is a non-empty string.
type Router struct {
	Preset        string            `toml:"preset,omitempty"` // "quality", "balanced", "budget"
	Providers     map[string]bool   `toml:"providers,omitempty"`
	Overrides     map[string]string `toml:"overrides,omitempty"` // workType -> model
	APIKeys       map[string]string `toml:"api_keys,omitempty"`
	FallbackModel string            `toml:"fallback_model,omitempty"`
}

// Daemon holds patrol daemon settings.
type Daemon struct {
	PatrolIntervalSec int `toml:"patrol_interval_sec,omitempty"` // default 30
}

// Specialist defines a named, reused agent in the warm pool.
type Specialist struct {
	Name     string `toml:"name"`
	WorkType string `toml:"work_type"`
	Runtime  string `toml:"runtime,omitempty"`
}

// Lazy holds the scrollback patterns that flag stalling agents.
// Empty means use the built-in set.
type Lazy struct {
	Patterns []string `toml:"patterns,omitempty"`
}

// DefaultFleet returns a Fleet with the given name and the four standard
// specialists. This is the config written by "pan init".
func DefaultFleet(name string) Fleet {
	return Fleet{
		Workspace: Workspace{Name: name, Runtime: "claude"},
		Router:    Router{Preset: "balanced"},
		Specialists: []Specialist{
			{Name: "review", WorkType: "specialist-review-agent"},
			{Name: "test", WorkType: "specialist-test-agent"},
			{Name: "merge", WorkType: "specialist-merge-agent"},
			{Name: "plan", WorkType: "specialist-plan-agent"},
		},
	}
}

// Marshal encodes a Fleet to TOML bytes.
func (f *Fleet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and parses a panopticon.toml file at the given path using
// the provided filesystem. All file I/O goes through fs for testability.
func Load(fs fsys.FS, path string) (*Fleet, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML data into a Fleet config. Unknown keys are ignored.
func Parse(data []byte) (*Fleet, error) {
	var cfg Fleet
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Workspace.Runtime == "" {
		cfg.Workspace.Runtime = "claude"
	}
	return &cfg, nil
}

// SpecialistNames returns the configured specialist names in order.
func (f *Fleet) SpecialistNames() []string {
	names := make([]string, 0, len(f.Specialists))
	for _, s := range f.Specialists {
		names = append(names, s.Name)
	}
	return names
}
