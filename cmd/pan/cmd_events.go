package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/events"
)

func newEventsCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the fleet event log",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "pan events: missing subcommand (list, watch)") //nolint:errcheck // best-effort stderr
			} else {
				fmt.Fprintf(stderr, "pan events: unknown subcommand %q\n", args[0]) //nolint:errcheck // best-effort stderr
			}
			return errExit
		},
	}
	cmd.AddCommand(
		newEventsListCmd(stdout, stderr),
		newEventsWatchCmd(stdout, stderr),
	)
	return cmd
}

func eventsPath(root string) string {
	return filepath.Join(root, "logs", "events.jsonl")
}

func newEventsListCmd(stdout, stderr io.Writer) *cobra.Command {
	var typeFilter, actorFilter string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded events",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doEventsList(typeFilter, actorFilter, limit, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFilter, "type", "", "only events of this type")
	cmd.Flags().StringVar(&actorFilter, "actor", "", "only events from this actor")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum events to show (0 = all)")
	return cmd
}

func doEventsList(typeFilter, actorFilter string, limit int, stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan events list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	evs, err := events.ReadFiltered(eventsPath(root), events.Filter{
		Type:  typeFilter,
		Actor: actorFilter,
	})
	if err != nil {
		fmt.Fprintf(stderr, "pan events list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	if len(evs) == 0 {
		fmt.Fprintln(stdout, "No events") //nolint:errcheck // best-effort stdout
		return 0
	}
	for _, e := range evs {
		printEvent(stdout, e)
	}
	return 0
}

func newEventsWatchCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream new events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doEventsWatch(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doEventsWatch(stdout, stderr io.Writer) int {
	root, err := resolveRoot()
	if err != nil {
		fmt.Fprintf(stderr, "pan events watch: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start after the current tail so only new events stream.
	var afterSeq uint64
	if evs, err := events.ReadAll(eventsPath(root)); err == nil && len(evs) > 0 {
		afterSeq = evs[len(evs)-1].Seq
	}

	rec, err := events.NewFileRecorder(eventsPath(root), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "pan events watch: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer rec.Close() //nolint:errcheck // best-effort cleanup

	w := rec.Watch(ctx, afterSeq)
	for {
		e, err := w.Next()
		if err != nil {
			return 0 // context canceled
		}
		printEvent(stdout, e)
	}
}

func printEvent(stdout io.Writer, e events.Event) {
	line := fmt.Sprintf("%s  %-22s %s", e.Ts.Local().Format(time.DateTime), e.Type, e.Actor)
	if e.Subject != "" {
		line += " " + e.Subject
	}
	if e.Message != "" {
		line += "  " + e.Message
	}
	fmt.Fprintln(stdout, line) //nolint:errcheck // best-effort stdout
}
