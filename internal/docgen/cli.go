package docgen

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RenderCLIMarkdown writes a CLI reference by walking a cobra command
// tree: global flags first, then one H2 section per visible command
// with synopsis, examples, a local-flags table, and a subcommand index.
func RenderCLIMarkdown(w io.Writer, root *cobra.Command) error {
	if _, err := fmt.Fprintf(w, "# CLI Reference\n\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "> **Auto-generated** — do not edit. Run `go run ./cmd/genschema` to regenerate.\n\n"); err != nil {
		return err
	}

	if err := renderGlobalFlags(w, root); err != nil {
		return err
	}
	return renderTree(w, root)
}

// WriteCLIMarkdown writes the CLI reference to path via temp+rename.
func WriteCLIMarkdown(path string, root *cobra.Command) error {
	return writeAtomic(path, ".pan-cli-md-*", func(w io.Writer) error {
		return RenderCLIMarkdown(w, root)
	})
}

// renderTree renders cmd and then its visible children, depth-first.
func renderTree(w io.Writer, cmd *cobra.Command) error {
	if err := renderCommand(w, cmd); err != nil {
		return err
	}
	for _, child := range cmd.Commands() {
		if child.Hidden {
			continue
		}
		if err := renderTree(w, child); err != nil {
			return err
		}
	}
	return nil
}

// renderCommand renders a single command section.
func renderCommand(w io.Writer, cmd *cobra.Command) error {
	if _, err := fmt.Fprintf(w, "## %s\n\n", cmd.CommandPath()); err != nil {
		return err
	}

	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	if desc != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(desc)); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "```\n%s\n```\n\n", cmd.UseLine()); err != nil {
		return err
	}

	if cmd.Example != "" {
		if _, err := fmt.Fprintf(w, "**Example:**\n\n```\n%s\n```\n\n", strings.TrimSpace(cmd.Example)); err != nil {
			return err
		}
	}

	if err := renderFlagsTable(w, cmd.LocalNonPersistentFlags()); err != nil {
		return err
	}
	return renderSubcommandsTable(w, cmd)
}

// renderGlobalFlags renders the root command's persistent flags.
func renderGlobalFlags(w io.Writer, root *cobra.Command) error {
	var flags []flagInfo
	root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, newFlagInfo(f))
	})
	if len(flags) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "## Global Flags\n\n"); err != nil {
		return err
	}
	return writeFlagTable(w, flags)
}

// flagInfo holds rendered flag metadata.
type flagInfo struct {
	Name    string
	Type    string
	Default string
	Desc    string
}

func newFlagInfo(f *pflag.Flag) flagInfo {
	name := "`--" + f.Name + "`"
	if f.Shorthand != "" {
		name = "`-" + f.Shorthand + "`, `--" + f.Name + "`"
	}

	defVal := ""
	if !isZeroDefault(f.DefValue, f.Value.Type()) {
		defVal = "`" + f.DefValue + "`"
	}

	return flagInfo{
		Name:    name,
		Type:    f.Value.Type(),
		Default: defVal,
		Desc:    strings.ReplaceAll(f.Usage, "|", "\\|"),
	}
}

// isZeroDefault reports whether the default value is the zero value for
// its flag type; zero defaults render as an empty cell.
func isZeroDefault(val, typ string) bool {
	switch typ {
	case "bool":
		return val == "false"
	case "int", "int32", "int64", "uint", "uint32", "uint64", "float32", "float64":
		return val == "0"
	case "string":
		return val == ""
	case "stringSlice", "stringArray":
		return val == "[]"
	default:
		return val == ""
	}
}

func renderFlagsTable(w io.Writer, fs *pflag.FlagSet) error {
	var flags []flagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, newFlagInfo(f))
	})
	if len(flags) == 0 {
		return nil
	}
	return writeFlagTable(w, flags)
}

func writeFlagTable(w io.Writer, flags []flagInfo) error {
	if _, err := fmt.Fprintf(w, "| Flag | Type | Default | Description |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "|------|------|---------|-------------|\n"); err != nil {
		return err
	}
	for _, f := range flags {
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
			f.Name, f.Type, f.Default, f.Desc); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// renderSubcommandsTable renders an anchor-linked index of the visible
// children, when there are any.
func renderSubcommandsTable(w io.Writer, cmd *cobra.Command) error {
	var children []*cobra.Command
	for _, c := range cmd.Commands() {
		if !c.Hidden {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "| Subcommand | Description |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "|------------|-------------|\n"); err != nil {
		return err
	}
	for _, c := range children {
		anchor := strings.ToLower(strings.ReplaceAll(c.CommandPath(), " ", "-"))
		if _, err := fmt.Fprintf(w, "| [%s](#%s) | %s |\n",
			c.CommandPath(), anchor, c.Short); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
