// Package docgen generates JSON Schema and markdown documentation from
// Panopticon's Go config structs.
package docgen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/steveyegge/panopticon/internal/config"
)

// ModuleRoot finds the repo root by walking up from the current directory
// looking for go.mod. Returns the absolute path.
func ModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent of %s", dir)
		}
		dir = parent
	}
}

// newReflector creates a jsonschema.Reflector using the given struct tag
// for field names, with Go doc comments extracted from the source tree.
//
// AddGoComments requires the path parameter to be "." with the working
// directory set to the module root, so that filepath.Walk produces paths
// like "internal/config" which map to the correct import path.
func newReflector(fieldTag string) (*jsonschema.Reflector, error) {
	root, err := ModuleRoot()
	if err != nil {
		return nil, err
	}

	// Save and restore CWD — AddGoComments needs CWD at module root.
	orig, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if err := os.Chdir(root); err != nil {
		return nil, fmt.Errorf("chdir to module root: %w", err)
	}
	defer func() { _ = os.Chdir(orig) }()

	r := &jsonschema.Reflector{
		FieldNameTag: fieldTag,
	}
	if err := r.AddGoComments("github.com/steveyegge/panopticon", "."); err != nil {
		return nil, fmt.Errorf("extracting Go comments: %w", err)
	}
	return r, nil
}

// GenerateFleetSchema produces a JSON Schema for the panopticon.toml
// config format. It reflects the config.Fleet struct using TOML field
// names and extracts doc comments as descriptions.
func GenerateFleetSchema() (*jsonschema.Schema, error) {
	r, err := newReflector("toml")
	if err != nil {
		return nil, err
	}
	s := r.Reflect(&config.Fleet{})
	s.Title = "Panopticon Configuration"
	s.Description = "Schema for panopticon.toml — the top-level configuration file for a Panopticon fleet."
	return s, nil
}

// GenerateTunablesSchema produces a JSON Schema for the deacon/config.json
// operator overlay. Fields are millisecond integers; zero keeps the
// built-in default.
func GenerateTunablesSchema() (*jsonschema.Schema, error) {
	r, err := newReflector("json")
	if err != nil {
		return nil, err
	}
	s := r.Reflect(&config.TunablesOverlay{})
	s.Title = "Panopticon Tunables Overlay"
	s.Description = "Schema for deacon/config.json — per-field overrides for the supervisor's timing knobs."
	return s, nil
}
