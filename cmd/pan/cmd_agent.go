package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/heartbeat"
	"github.com/steveyegge/panopticon/internal/hooks"
	"github.com/steveyegge/panopticon/internal/registry"
	sessiontmux "github.com/steveyegge/panopticon/internal/session/tmux"
)

func newAgentCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "pan agent: missing subcommand (spawn, stop, list, attach, peek, nudge, resume, recover, purge)") //nolint:errcheck // best-effort stderr
			} else {
				fmt.Fprintf(stderr, "pan agent: unknown subcommand %q\n", args[0]) //nolint:errcheck // best-effort stderr
			}
			return errExit
		},
	}
	cmd.AddCommand(
		newAgentSpawnCmd(stdout, stderr),
		newAgentStopCmd(stdout, stderr),
		newAgentListCmd(stdout, stderr),
		newAgentAttachCmd(stdout, stderr),
		newAgentPeekCmd(stdout, stderr),
		newAgentNudgeCmd(stdout, stderr),
		newAgentResumeCmd(stdout, stderr),
		newAgentRecoverCmd(stdout, stderr),
		newAgentPurgeCmd(stdout, stderr),
	)
	return cmd
}

func newAgentSpawnCmd(stdout, stderr io.Writer) *cobra.Command {
	var workspace, workType, runtime, branch string
	cmd := &cobra.Command{
		Use:   "spawn <issue-id>",
		Short: "Spawn a new agent for an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if doAgentSpawn(args[0], workspace, workType, runtime, branch, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "working directory for the agent")
	cmd.Flags().StringVar(&workType, "work-type", "issue-agent:implementation", "work type for model routing")
	cmd.Flags().StringVar(&runtime, "runtime", "", "agent CLI to run (default from panopticon.toml)")
	cmd.Flags().StringVar(&branch, "branch", "", "git branch the agent works on")
	return cmd
}

func doAgentSpawn(issueID, workspace, workType, runtime, branch string, stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan agent spawn")
	if a == nil {
		return code
	}
	if runtime == "" {
		runtime = a.cfg.Workspace.Runtime
	}

	rec, err := a.reg.Spawn(registry.SpawnRequest{
		IssueID:       issueID,
		WorkspacePath: workspace,
		WorkType:      workType,
		Runtime:       runtime,
		Branch:        branch,
	})
	if err != nil {
		fmt.Fprintf(stderr, "pan agent spawn: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	// Install heartbeat hooks so the patrol can tell a thinking agent
	// from a dead one. Best-effort — an agent without hooks just reads
	// as heartbeat-missing.
	if workspace != "" {
		rtName := filepath.Base(strings.Fields(runtime)[0])
		if hooks.Supported(rtName) {
			if err := hooks.Install(a.fs, workspace, []string{rtName}); err != nil {
				fmt.Fprintf(stderr, "pan agent spawn: %v\n", err) //nolint:errcheck // best-effort stderr
			}
		}
	}

	fmt.Fprintf(stdout, "Spawned agent '%s' (model %s, session %s)\n", rec.ID, rec.Model, a.reg.SessionName(rec.ID)) //nolint:errcheck // best-effort stdout
	return 0
}

func newAgentStopCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <agent-id>",
		Short: "Stop an agent's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan agent stop")
			if a == nil {
				return exitIf(code)
			}
			if err := a.reg.Stop(args[0]); err != nil {
				fmt.Fprintf(stderr, "pan agent stop: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Stopped agent '%s'\n", registry.NormalizeID(args[0])) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

func newAgentListCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents with session and heartbeat state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doAgentList(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doAgentList(stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan agent list")
	if a == nil {
		return code
	}
	infos, err := a.reg.List()
	if err != nil {
		fmt.Fprintf(stderr, "pan agent list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(infos) == 0 {
		fmt.Fprintln(stdout, "No agents") //nolint:errcheck // best-effort stdout
		return 0
	}

	sup := a.newSupervisor(stderr)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tISSUE\tSTATUS\tSESSION\tHEALTH\tLAST ACTIVITY") //nolint:errcheck // best-effort stdout
	for _, info := range infos {
		sess := "-"
		if info.TmuxActive {
			sess = "live"
		}
		view := sup.Classify(info.Record.ID)
		age := "-"
		if view.LastActivity != nil {
			age = heartbeat.FormatAge(view.TimeSinceActivity) + " ago"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort stdout
			info.Record.ID, info.Record.IssueID, info.Record.Status, sess, view.State, age)
	}
	tw.Flush() //nolint:errcheck // best-effort stdout
	return 0
}

func newAgentAttachCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <agent-id>",
		Short: "Attach to an agent's tmux session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan agent attach")
			if a == nil {
				return exitIf(code)
			}
			tp, ok := a.sessions.(*sessiontmux.Provider)
			if !ok {
				fmt.Fprintln(stderr, "pan agent attach: attach requires the tmux provider") //nolint:errcheck // best-effort stderr
				return errExit
			}
			if err := tp.Attach(a.reg.SessionName(args[0])); err != nil {
				fmt.Fprintf(stderr, "pan agent attach: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			return nil
		},
	}
}

func newAgentPeekCmd(stdout, stderr io.Writer) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "peek <agent-id>",
		Short: "Show the last lines of an agent's scrollback",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan agent peek")
			if a == nil {
				return exitIf(code)
			}
			out, err := a.sessions.Peek(a.reg.SessionName(args[0]), lines)
			if err != nil {
				fmt.Fprintf(stderr, "pan agent peek: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprint(stdout, out) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of scrollback lines")
	return cmd
}

func newAgentNudgeCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "nudge <agent-id> <message>",
		Short: "Send a message to an agent's session",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan agent nudge")
			if a == nil {
				return exitIf(code)
			}
			if err := a.sessions.Nudge(a.reg.SessionName(args[0]), args[1]); err != nil {
				fmt.Fprintf(stderr, "pan agent nudge: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Nudged agent '%s'\n", registry.NormalizeID(args[0])) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

func newAgentResumeCmd(stdout, stderr io.Writer) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "resume <agent-id>",
		Short: "Resume a suspended agent against its saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if doAgentResume(args[0], message, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "message to deliver once the agent is ready")
	return cmd
}

func doAgentResume(id, message string, stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan agent resume")
	if a == nil {
		return code
	}
	sup := a.newSupervisor(stderr)
	if err := sup.Resume(id, message); err != nil {
		fmt.Fprintf(stderr, "pan agent resume: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Resumed agent '%s'\n", registry.NormalizeID(id)) //nolint:errcheck // best-effort stdout
	return 0
}

func newAgentRecoverCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Recreate sessions for agents whose sessions died",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doAgentRecover(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doAgentRecover(stdout, stderr io.Writer) int {
	a, code := openApp(stderr, "pan agent recover")
	if a == nil {
		return code
	}
	sup := a.newSupervisor(stderr)
	recovered, err := sup.RecoverCrashed()
	if err != nil {
		fmt.Fprintf(stderr, "pan agent recover: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(recovered) == 0 {
		fmt.Fprintln(stdout, "No crashed agents") //nolint:errcheck // best-effort stdout
		return 0
	}
	for _, id := range recovered {
		fmt.Fprintf(stdout, "Recovered agent '%s'\n", id) //nolint:errcheck // best-effort stdout
	}
	return 0
}

func newAgentPurgeCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <agent-id>",
		Short: "Stop an agent and remove its directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan agent purge")
			if a == nil {
				return exitIf(code)
			}
			if err := a.reg.Purge(args[0]); err != nil {
				fmt.Fprintf(stderr, "pan agent purge: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Purged agent '%s'\n", registry.NormalizeID(args[0])) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

// exitIf converts a nonzero openApp code to errExit.
func exitIf(code int) error {
	if code != 0 {
		return errExit
	}
	return nil
}
