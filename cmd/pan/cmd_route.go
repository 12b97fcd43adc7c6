package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/panopticon/internal/router"
)

func newRouteCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Inspect work-type model routing",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "pan route: missing subcommand (explain, list)") //nolint:errcheck // best-effort stderr
			} else {
				fmt.Fprintf(stderr, "pan route: unknown subcommand %q\n", args[0]) //nolint:errcheck // best-effort stderr
			}
			return errExit
		},
	}
	cmd.AddCommand(
		newRouteExplainCmd(stdout, stderr),
		newRouteListCmd(stdout, stderr),
	)
	return cmd
}

func newRouteExplainCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <work-type>",
		Short: "Explain how a work type resolves to a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, code := openApp(stderr, "pan route explain")
			if a == nil {
				return exitIf(code)
			}
			explanation, err := a.rt.Explain(args[0])
			if err != nil {
				fmt.Fprintf(stderr, "pan route explain: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintln(stdout, explanation) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}

func newRouteListCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the resolved model for every work type",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, code := openApp(stderr, "pan route list")
			if a == nil {
				return exitIf(code)
			}
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORK TYPE\tMODEL\tSOURCE") //nolint:errcheck // best-effort stdout
			for _, wt := range router.WorkTypes() {
				res, err := a.rt.GetModel(wt)
				if err != nil {
					fmt.Fprintf(tw, "%s\terror\t%v\n", wt, err) //nolint:errcheck // best-effort stdout
					continue
				}
				source := res.Source
				if res.UsedFallback {
					source = fmt.Sprintf("%s (wanted %s)", res.Source, res.OriginalModel)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", wt, res.Model, source) //nolint:errcheck // best-effort stdout
			}
			tw.Flush() //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}
