package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/registry"
)

// newHeartbeatCmd creates the "pan heartbeat" command. Agent hooks call
// this on every tool use to refresh their heartbeat file.
func newHeartbeatCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <agent-id>",
		Short: "Record a heartbeat for an agent (called by agent hooks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan heartbeat")
			if a == nil {
				return exitIf(code)
			}
			id := registry.NormalizeID(args[0])
			if err := a.hb.Record(id, time.Now()); err != nil {
				fmt.Fprintf(stderr, "pan heartbeat: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			return nil
		},
	}
}
