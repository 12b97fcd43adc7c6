package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/handoff"
)

func newHandoffCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Inspect and record specialist handoffs",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "pan handoff: missing subcommand (list, stats, log)") //nolint:errcheck // best-effort stderr
			} else {
				fmt.Fprintf(stderr, "pan handoff: unknown subcommand %q\n", args[0]) //nolint:errcheck // best-effort stderr
			}
			return errExit
		},
	}
	cmd.AddCommand(
		newHandoffListCmd(stdout, stderr),
		newHandoffStatsCmd(stdout, stderr),
		newHandoffLogCmd(stdout, stderr),
	)
	return cmd
}

func newHandoffListCmd(stdout, stderr io.Writer) *cobra.Command {
	var issue string
	var limit int
	var today bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List handoff events, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doHandoffList(issue, limit, today, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&issue, "issue", "", "only handoffs for this issue")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum events to show (0 = all)")
	cmd.Flags().BoolVar(&today, "today", false, "only today's handoffs (UTC)")
	return cmd
}

func doHandoffList(issue string, limit int, today bool, stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan handoff list")
	if a == nil {
		return code
	}

	var evs []handoff.Event
	var err error
	switch {
	case issue != "":
		evs, err = a.handoffs.ReadByIssue(issue)
	case today:
		evs, err = a.handoffs.ReadToday()
	default:
		evs, err = a.handoffs.ReadAll(limit)
	}
	if err != nil {
		fmt.Fprintf(stderr, "pan handoff list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(evs) == 0 {
		fmt.Fprintln(stdout, "No handoffs") //nolint:errcheck // best-effort stdout
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tISSUE\tFROM\tTO\tSTATUS\tRESULT") //nolint:errcheck // best-effort stdout
	for _, e := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort stdout
			e.Timestamp.Format("01-02 15:04"), e.IssueID, e.FromSpecialist, e.ToSpecialist, e.Status, e.Result)
	}
	tw.Flush() //nolint:errcheck // best-effort stdout
	return 0
}

func newHandoffStatsCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show handoff traffic statistics",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doHandoffStats(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doHandoffStats(stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan handoff stats")
	if a == nil {
		return code
	}
	st, err := a.handoffs.Stats()
	if err != nil {
		fmt.Fprintf(stderr, "pan handoff stats: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	fmt.Fprintf(stdout, "Total handoffs: %d (%d today)\n", st.TotalHandoffs, st.TodayCount) //nolint:errcheck // best-effort stdout
	fmt.Fprintf(stdout, "Success rate:   %.0f%%\n", st.SuccessRate*100)                    //nolint:errcheck // best-effort stdout
	fmt.Fprintf(stdout, "Queue depth:    %d\n", st.QueueDepth)                             //nolint:errcheck // best-effort stdout

	if len(st.BySpecialist) > 0 {
		names := make([]string, 0, len(st.BySpecialist))
		for name := range st.BySpecialist {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SPECIALIST\tSENT\tRECEIVED") //nolint:errcheck // best-effort stdout
		for _, name := range names {
			tr := st.BySpecialist[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\n", name, tr.Sent, tr.Received) //nolint:errcheck // best-effort stdout
		}
		tw.Flush() //nolint:errcheck // best-effort stdout
	}
	return 0
}

func newHandoffLogCmd(stdout, stderr io.Writer) *cobra.Command {
	var id, issue, from, to, status, result, priority string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Append a handoff event to the log",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doHandoffLog(id, issue, from, to, status, result, priority, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "handoff id (amend when it already exists)")
	cmd.Flags().StringVar(&issue, "issue", "", "issue id")
	cmd.Flags().StringVar(&from, "from", "", "specialist handing off")
	cmd.Flags().StringVar(&to, "to", "", "specialist receiving")
	cmd.Flags().StringVar(&status, "status", handoff.StatusQueued, "queued, processing, completed, or failed")
	cmd.Flags().StringVar(&result, "result", "", "free-form outcome")
	cmd.Flags().StringVar(&priority, "priority", "", "handoff priority")
	cmd.MarkFlagRequired("id")    //nolint:errcheck // flag exists
	cmd.MarkFlagRequired("issue") //nolint:errcheck // flag exists
	return cmd
}

func doHandoffLog(id, issue, from, to, status, result, priority string, stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan handoff log")
	if a == nil {
		return code
	}
	err := a.handoffs.Append(handoff.Event{
		ID:             id,
		IssueID:        issue,
		FromSpecialist: from,
		ToSpecialist:   to,
		Status:         status,
		Result:         result,
		Priority:       priority,
	})
	if err != nil {
		fmt.Fprintf(stderr, "pan handoff log: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Logged handoff '%s'\n", id) //nolint:errcheck // best-effort stdout
	return 0
}
