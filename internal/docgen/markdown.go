package docgen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// RenderMarkdown writes a markdown reference document from a JSON
// Schema: one section per $defs entry with a field table, root type
// first.
func RenderMarkdown(w io.Writer, s *jsonschema.Schema) error {
	title := s.Title
	if title == "" {
		title = "Configuration Reference"
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
		return err
	}
	if s.Description != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", s.Description); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "> **Auto-generated** — do not edit. Run `go run ./cmd/genschema` to regenerate.\n\n"); err != nil {
		return err
	}

	// Root type name, from a $ref like "#/$defs/Fleet".
	rootName := ""
	if s.Ref != "" {
		parts := strings.Split(s.Ref, "/")
		rootName = parts[len(parts)-1]
	}

	if s.Definitions == nil {
		return nil
	}

	var names []string
	for name := range s.Definitions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == rootName {
			return true
		}
		if names[j] == rootName {
			return false
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		def := s.Definitions[name]
		if def == nil || def.Properties == nil {
			continue
		}

		if _, err := fmt.Fprintf(w, "## %s\n\n", name); err != nil {
			return err
		}
		if def.Description != "" {
			if _, err := fmt.Fprintf(w, "%s\n\n", def.Description); err != nil {
				return err
			}
		}

		reqSet := make(map[string]bool)
		for _, r := range def.Required {
			reqSet[r] = true
		}

		if _, err := fmt.Fprintf(w, "| Field | Type | Required | Default | Description |\n"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "|-------|------|----------|---------|-------------|\n"); err != nil {
			return err
		}

		for pair := def.Properties.Oldest(); pair != nil; pair = pair.Next() {
			fieldName := pair.Key
			prop := pair.Value

			req := ""
			if reqSet[fieldName] {
				req = "**yes**"
			}
			if _, err := fmt.Fprintf(w, "| `%s` | %s | %s | %s | %s |\n",
				fieldName, schemaTypeString(prop), req, formatDefault(prop), formatDescription(prop)); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	return nil
}

// WriteMarkdown writes the schema reference to path via temp+rename.
func WriteMarkdown(path string, s *jsonschema.Schema) error {
	return writeAtomic(path, ".pan-schema-md-*", func(w io.Writer) error {
		return RenderMarkdown(w, s)
	})
}

// writeAtomic renders into a temp file beside the target and renames it
// into place, so readers never see a partial document.
func writeAtomic(path, pattern string, render func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := render(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// schemaTypeString renders a property's type the way a Go reader would
// expect it: $refs by name, arrays as []T, string-keyed objects as maps.
func schemaTypeString(prop *jsonschema.Schema) string {
	if prop.Ref != "" {
		return refName(prop.Ref)
	}

	switch prop.Type {
	case "array":
		if prop.Items != nil {
			if prop.Items.Ref != "" {
				return "[]" + refName(prop.Items.Ref)
			}
			return "[]" + prop.Items.Type
		}
		return "array"
	case "object":
		if prop.AdditionalProperties != nil {
			val := prop.AdditionalProperties
			if val.Ref != "" {
				return "map[string]" + refName(val.Ref)
			}
			return "map[string]" + val.Type
		}
		return "object"
	default:
		if prop.Type != "" {
			return prop.Type
		}
		return "any"
	}
}

// refName extracts the type name from a $ref like "#/$defs/Specialist".
func refName(ref string) string {
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}

// formatDefault returns the default value as a string, or empty.
func formatDefault(prop *jsonschema.Schema) string {
	if prop.Default != nil {
		return fmt.Sprintf("`%v`", prop.Default)
	}
	return ""
}

// formatDescription returns the description with enum values appended,
// flattened and pipe-escaped for a markdown table cell.
func formatDescription(prop *jsonschema.Schema) string {
	desc := prop.Description
	if len(prop.Enum) > 0 {
		vals := make([]string, len(prop.Enum))
		for i, v := range prop.Enum {
			vals[i] = fmt.Sprintf("`%v`", v)
		}
		enumStr := "Enum: " + strings.Join(vals, ", ")
		if desc != "" {
			desc += " " + enumStr
		} else {
			desc = enumStr
		}
	}
	desc = strings.ReplaceAll(desc, "\n", " ")
	desc = strings.ReplaceAll(desc, "|", "\\|")
	return desc
}
