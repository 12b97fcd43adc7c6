// Package router resolves work-type identifiers to concrete model ids.
//
// Resolution is override, then preset default, then provider fallback:
// when the chosen model's provider is not credentialed, the configured
// fallback model (always from the anthropic provider) is substituted.
// The router is pure given its configuration; Reload re-reads it on
// explicit request.
package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/steveyegge/panopticon/internal/config"
	"github.com/steveyegge/panopticon/internal/fsys"
)

// ErrUnknownWorkType is returned when a work type is outside the closed
// set.
var ErrUnknownWorkType = errors.New("unknown work type")

// Resolution explains how a work type mapped to a model.
type Resolution struct {
	Model         string `json:"model"`
	Source        string `json:"source"` // "override", "preset", or "fallback"
	Preset        string `json:"preset"`
	UsedFallback  bool   `json:"usedFallback"`
	OriginalModel string `json:"originalModel,omitempty"` // set when fallback applied
}

// Router maps work types to models under a loaded configuration.
// Safe for concurrent use; Reload swaps the configuration atomically.
type Router struct {
	fs   fsys.FS
	path string

	mu  sync.RWMutex
	cfg config.Router
}

// New loads the fleet config at path and returns a validated Router.
func New(fs fsys.FS, path string) (*Router, error) {
	r := &Router{fs: fs, path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromConfig returns a Router over an in-memory configuration.
// Reload is unavailable on such a router.
func NewFromConfig(rc config.Router) (*Router, error) {
	if err := validate(rc); err != nil {
		return nil, err
	}
	return &Router{cfg: rc}, nil
}

// Reload re-reads and validates the configuration file. On validation
// failure the previous configuration stays in effect.
func (r *Router) Reload() error {
	if r.fs == nil {
		return errors.New("router has no backing config file")
	}
	fleet, err := config.Load(r.fs, r.path)
	if err != nil {
		return err
	}
	if err := validate(fleet.Router); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = fleet.Router
	r.mu.Unlock()
	return nil
}

// validate rejects overrides that reference unknown work types or
// unknown model ids.
func validate(rc config.Router) error {
	if rc.Preset != "" {
		if _, ok := presets[rc.Preset]; !ok {
			return fmt.Errorf("unknown preset %q", rc.Preset)
		}
	}
	for wt, model := range rc.Overrides {
		if !workTypes[wt] {
			return fmt.Errorf("override for %q: %w", wt, ErrUnknownWorkType)
		}
		if _, ok := modelProviders[model]; !ok {
			return fmt.Errorf("override for %q: unknown model %q", wt, model)
		}
	}
	if rc.FallbackModel != "" {
		p, ok := modelProviders[rc.FallbackModel]
		if !ok {
			return fmt.Errorf("unknown fallback model %q", rc.FallbackModel)
		}
		if p != "anthropic" {
			return fmt.Errorf("fallback model %q is not from the always-available provider", rc.FallbackModel)
		}
	}
	return nil
}

// GetModel resolves a work type to a model under the current config.
func (r *Router) GetModel(workType string) (Resolution, error) {
	if !workTypes[workType] {
		return Resolution{}, fmt.Errorf("%q: %w", workType, ErrUnknownWorkType)
	}

	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	preset := cfg.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	res := Resolution{Preset: preset}
	if model, ok := cfg.Overrides[workType]; ok {
		res.Model = model
		res.Source = "override"
	} else {
		res.Model = presets[preset][workType]
		res.Source = "preset"
	}

	if !r.providerEnabled(cfg, modelProviders[res.Model]) {
		res.OriginalModel = res.Model
		res.Model = cfg.FallbackModel
		if res.Model == "" {
			res.Model = DefaultFallbackModel
		}
		res.Source = "fallback"
		res.UsedFallback = true
	}
	return res, nil
}

// providerEnabled reports whether a provider may be used. Anthropic is
// unconditionally enabled; others need either an explicit enable or a
// non-empty credential key.
func (r *Router) providerEnabled(cfg config.Router, provider string) bool {
	if provider == "anthropic" {
		return true
	}
	if cfg.Providers[provider] {
		return true
	}
	return cfg.APIKeys[provider] != ""
}

// Explain renders a human-readable account of a resolution.
func (r *Router) Explain(workType string) (string, error) {
	res, err := r.GetModel(workType)
	if err != nil {
		return "", err
	}
	s := fmt.Sprintf("%s -> %s (source: %s, preset: %s)", workType, res.Model, res.Source, res.Preset)
	if res.UsedFallback {
		s += fmt.Sprintf("; provider for %s not enabled, fell back", res.OriginalModel)
	}
	return s, nil
}
