package hooks

import (
	"strings"
	"testing"

	"github.com/steveyegge/panopticon/internal/fsys"
)

func TestSupportedRuntimes(t *testing.T) {
	got := SupportedRuntimes()
	if len(got) != 3 {
		t.Fatalf("SupportedRuntimes() = %v, want 3 entries", got)
	}
	want := map[string]bool{"claude": true, "gemini": true, "opencode": true}
	for _, r := range got {
		if !want[r] {
			t.Errorf("unexpected runtime %q", r)
		}
	}
}

func TestValidateAcceptsSupported(t *testing.T) {
	if err := Validate([]string{"claude", "gemini"}); err != nil {
		t.Errorf("Validate([claude gemini]) = %v, want nil", err)
	}
}

func TestValidateRejectsUnsupported(t *testing.T) {
	err := Validate([]string{"claude", "codex", "bogus"})
	if err == nil {
		t.Fatal("Validate should reject codex and bogus")
	}
	if !strings.Contains(err.Error(), "codex (no hook mechanism)") {
		t.Errorf("error should mention codex: %v", err)
	}
	if !strings.Contains(err.Error(), "bogus (unknown)") {
		t.Errorf("error should mention bogus: %v", err)
	}
}

func TestValidateEmpty(t *testing.T) {
	if err := Validate(nil); err != nil {
		t.Errorf("Validate(nil) = %v, want nil", err)
	}
}

func TestInstallClaude(t *testing.T) {
	fs := fsys.NewFake()
	err := Install(fs, "/work", []string{"claude"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	data, ok := fs.Files["/work/.claude/settings.json"]
	if !ok {
		t.Fatal("expected /work/.claude/settings.json to be written")
	}
	if !strings.Contains(string(data), "PostToolUse") {
		t.Error("claude settings should contain PostToolUse hook")
	}
	if !strings.Contains(string(data), "pan heartbeat") {
		t.Error("claude settings should call pan heartbeat")
	}
}

func TestInstallGemini(t *testing.T) {
	fs := fsys.NewFake()
	err := Install(fs, "/work", []string{"gemini"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	data, ok := fs.Files["/work/.gemini/settings.json"]
	if !ok {
		t.Fatal("expected /work/.gemini/settings.json to be written")
	}
	if !strings.Contains(string(data), "pan heartbeat") {
		t.Error("gemini settings should call pan heartbeat")
	}
}

func TestInstallOpenCode(t *testing.T) {
	fs := fsys.NewFake()
	err := Install(fs, "/work", []string{"opencode"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	data, ok := fs.Files["/work/.opencode/plugins/panopticon.js"]
	if !ok {
		t.Fatal("expected /work/.opencode/plugins/panopticon.js to be written")
	}
	if !strings.Contains(string(data), "pan heartbeat") {
		t.Error("opencode plugin should call pan heartbeat")
	}
}

func TestInstallMultipleRuntimes(t *testing.T) {
	fs := fsys.NewFake()
	err := Install(fs, "/work", []string{"claude", "gemini", "opencode"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	for _, path := range []string{
		"/work/.claude/settings.json",
		"/work/.gemini/settings.json",
		"/work/.opencode/plugins/panopticon.js",
	} {
		if _, ok := fs.Files[path]; !ok {
			t.Errorf("missing %s", path)
		}
	}
}

func TestInstallIdempotent(t *testing.T) {
	fs := fsys.NewFake()
	// Pre-populate with custom content.
	fs.Files["/work/.claude/settings.json"] = []byte(`{"custom": true}`)

	err := Install(fs, "/work", []string{"claude"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	// Should not overwrite existing file.
	got := string(fs.Files["/work/.claude/settings.json"])
	if got != `{"custom": true}` {
		t.Errorf("Install overwrote existing file: got %q", got)
	}
}

func TestInstallUnknownRuntime(t *testing.T) {
	fs := fsys.NewFake()
	err := Install(fs, "/work", []string{"bogus"})
	if err == nil {
		t.Fatal("Install should reject unknown runtime")
	}
	if !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("error should mention unsupported: %v", err)
	}
}

func TestInstallEmpty(t *testing.T) {
	fs := fsys.NewFake()
	err := Install(fs, "/work", nil)
	if err != nil {
		t.Fatalf("Install(nil) = %v, want nil", err)
	}
}
