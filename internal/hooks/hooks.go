// Package hooks installs runtime-specific heartbeat hook files into agent
// working directories. Each runtime (Claude, Gemini, OpenCode) has its own
// file format and install location; the hooks call "pan heartbeat" on every
// tool use so the patrol can tell a thinking agent from a dead one. Hook
// files are embedded at build time and written idempotently — existing
// files are never overwritten.
package hooks

import (
	"embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyegge/panopticon/internal/fsys"
)

//go:embed config/*
var configFS embed.FS

// supported lists runtime names that have hook support.
var supported = []string{"claude", "gemini", "opencode"}

// unsupported lists runtime names that have no hook mechanism.
var unsupported = []string{"codex", "cursor", "amp"}

// SupportedRuntimes returns the list of runtime names with hook support.
func SupportedRuntimes() []string {
	out := make([]string, len(supported))
	copy(out, supported)
	return out
}

// Supported reports whether the named runtime has hook support.
func Supported(runtime string) bool {
	for _, s := range supported {
		if s == runtime {
			return true
		}
	}
	return false
}

// Validate checks that all runtime names are supported for hook
// installation. Returns an error listing any unsupported names.
func Validate(runtimes []string) error {
	noHook := make(map[string]bool, len(unsupported))
	for _, u := range unsupported {
		noHook[u] = true
	}
	var bad []string
	for _, r := range runtimes {
		if !Supported(r) {
			if noHook[r] {
				bad = append(bad, fmt.Sprintf("%s (no hook mechanism)", r))
			} else {
				bad = append(bad, fmt.Sprintf("%s (unknown)", r))
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("unsupported heartbeat hooks: %s; supported: %s",
			strings.Join(bad, ", "), strings.Join(supported, ", "))
	}
	return nil
}

// Install writes heartbeat hook files for the given runtimes into the
// agent's working directory. Idempotent — existing files are not
// overwritten, so agents can carry their own customized settings.
func Install(fs fsys.FS, workDir string, runtimes []string) error {
	for _, r := range runtimes {
		var err error
		switch r {
		case "claude":
			err = writeEmbedded(fs, "config/claude.json", filepath.Join(workDir, ".claude", "settings.json"))
		case "gemini":
			err = writeEmbedded(fs, "config/gemini.json", filepath.Join(workDir, ".gemini", "settings.json"))
		case "opencode":
			err = writeEmbedded(fs, "config/opencode.js", filepath.Join(workDir, ".opencode", "plugins", "panopticon.js"))
		default:
			return fmt.Errorf("unsupported hook runtime %q", r)
		}
		if err != nil {
			return fmt.Errorf("installing %s hooks: %w", r, err)
		}
	}
	return nil
}

// writeEmbedded reads an embedded file and writes it to dst, creating parent
// directories as needed. Skips if dst already exists.
func writeEmbedded(fs fsys.FS, embedPath, dst string) error {
	// Idempotent: skip if file exists.
	if _, err := fs.Stat(dst); err == nil {
		return nil
	}

	data, err := configFS.ReadFile(embedPath)
	if err != nil {
		return fmt.Errorf("reading embedded %s: %w", embedPath, err)
	}

	dir := filepath.Dir(dst)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	if err := fs.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
