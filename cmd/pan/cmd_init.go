package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/config"
)

// newInitCmd creates the "pan init" command.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a fleet directory with panopticon.toml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if doInit(args, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// fleetSubdirs are created under the fleet root at init time.
var fleetSubdirs = []string{"agents", "hooks", "heartbeats", "deacon", "logs"}

// doInit creates the fleet directory layout and a default
// panopticon.toml. Refuses to overwrite an existing config.
func doInit(args []string, stdout, stderr io.Writer) int {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(stderr, "pan init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	cfgPath := filepath.Join(dir, "panopticon.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Fprintf(stderr, "pan init: %s already exists\n", cfgPath) //nolint:errcheck // best-effort stderr
		return 1
	}

	for _, sub := range fleetSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			fmt.Fprintf(stderr, "pan init: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
	}

	cfg := config.DefaultFleet(filepath.Base(dir))
	data, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(stderr, "pan init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "pan init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	fmt.Fprintf(stdout, "Initialized fleet '%s' in %s\n", cfg.Workspace.Name, dir) //nolint:errcheck // best-effort stdout
	return 0
}
