package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/queue"
	"github.com/steveyegge/panopticon/internal/registry"
)

func newQueueCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage per-agent work queues",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "pan queue: missing subcommand (submit, peek, done, check, reorder)") //nolint:errcheck // best-effort stderr
			} else {
				fmt.Fprintf(stderr, "pan queue: unknown subcommand %q\n", args[0]) //nolint:errcheck // best-effort stderr
			}
			return errExit
		},
	}
	cmd.AddCommand(
		newQueueSubmitCmd(stdout, stderr),
		newQueuePeekCmd(stdout, stderr),
		newQueueDoneCmd(stdout, stderr),
		newQueueCheckCmd(stdout, stderr),
		newQueueReorderCmd(stdout, stderr),
	)
	return cmd
}

func newQueueSubmitCmd(stdout, stderr io.Writer) *cobra.Command {
	var id, itemType, priority, issue, notes, branch string
	cmd := &cobra.Command{
		Use:   "submit <agent-id>",
		Short: "Submit a work item to an agent's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if doQueueSubmit(args[0], id, itemType, priority, issue, notes, branch, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "item id (default: derived from time)")
	cmd.Flags().StringVar(&itemType, "type", "task", "item type: task or message")
	cmd.Flags().StringVar(&priority, "priority", queue.PriorityNormal, "urgent, high, normal, or low")
	cmd.Flags().StringVar(&issue, "issue", "", "issue id the work belongs to")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes for the agent")
	cmd.Flags().StringVar(&branch, "branch", "", "git branch for the work")
	return cmd
}

func doQueueSubmit(agentID, id, itemType, priority, issue, notes, branch string, stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan queue submit")
	if a == nil {
		return code
	}
	agentID = registry.NormalizeID(agentID)
	if id == "" {
		id = fmt.Sprintf("q-%d", time.Now().UnixMilli())
	}
	item := queue.Item{
		ID:       id,
		Type:     itemType,
		Priority: priority,
		Source:   eventActor(),
		Payload:  queue.Payload{IssueID: issue, Notes: notes, Branch: branch},
	}
	if err := a.queues.Submit(agentID, item); err != nil {
		fmt.Fprintf(stderr, "pan queue submit: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Queued %s '%s' for agent '%s' (%s)\n", itemType, id, agentID, priority) //nolint:errcheck // best-effort stdout
	return 0
}

func newQueuePeekCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "peek <agent-id>",
		Short: "Show the head of an agent's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan queue peek")
			if a == nil {
				return exitIf(code)
			}
			head := a.queues.PeekNext(registry.NormalizeID(args[0]))
			if head == nil {
				fmt.Fprintln(stdout, "Queue is empty") //nolint:errcheck // best-effort stdout
				return nil
			}
			fmt.Fprintf(stdout, "%s  %s  %s", head.ID, head.Priority, head.Type) //nolint:errcheck // best-effort stdout
			if head.Payload.IssueID != "" {
				fmt.Fprintf(stdout, "  issue=%s", head.Payload.IssueID) //nolint:errcheck // best-effort stdout
			}
			fmt.Fprintln(stdout) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

func newQueueDoneCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "done <agent-id> <item-id>",
		Short: "Mark a queued item complete and remove it",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan queue done")
			if a == nil {
				return exitIf(code)
			}
			removed, err := a.queues.Complete(registry.NormalizeID(args[0]), args[1])
			if err != nil {
				fmt.Fprintf(stderr, "pan queue done: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if !removed {
				fmt.Fprintf(stderr, "pan queue done: no item '%s' in queue\n", args[1]) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Completed '%s'\n", args[1]) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

func newQueueCheckCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check <agent-id>",
		Short: "Summarize an agent's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan queue check")
			if a == nil {
				return exitIf(code)
			}
			res := a.queues.Check(registry.NormalizeID(args[0]))
			if !res.HasWork {
				fmt.Fprintln(stdout, "No pending work") //nolint:errcheck // best-effort stdout
				return nil
			}
			fmt.Fprintf(stdout, "%d pending (%d urgent)\n", len(res.Items), res.UrgentCount) //nolint:errcheck // best-effort stdout
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			for _, it := range res.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Priority, it.Type, it.Payload.IssueID) //nolint:errcheck // best-effort stdout
			}
			tw.Flush() //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

func newQueueReorderCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <agent-id> <item-id,...>",
		Short: "Reorder an agent's queue to the given id sequence",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan queue reorder")
			if a == nil {
				return exitIf(code)
			}
			ids := strings.Split(args[1], ",")
			if err := a.queues.Reorder(registry.NormalizeID(args[0]), ids); err != nil {
				fmt.Fprintf(stderr, "pan queue reorder: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Reordered %d items\n", len(ids)) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}
