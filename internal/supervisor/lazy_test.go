package supervisor

import "testing"

func TestLazyDetect(t *testing.T) {
	d := newLazyDetector(nil)

	cases := []struct {
		name       string
		scrollback string
		want       bool
	}{
		{
			name:       "question at prompt",
			scrollback: "Done with analysis.\nWhat would you like me to do next?",
			want:       true,
		},
		{
			name:       "asking permission",
			scrollback: "The fix is ready.\nShould I proceed?",
			want:       true,
		},
		{
			name:       "deferral",
			scrollback: "This edge case is deferred to a future PR.\n$",
			want:       true,
		},
		{
			name:       "numbered options",
			scrollback: "Here are the choices:\n  1. Refactor now\n  2. Ship as is\nPick one >",
			want:       true,
		},
		{
			name:       "working output, no prompt",
			scrollback: "Running tests...\nok  pkg/foo  0.3s\ncompiling",
			want:       false,
		},
		{
			name:       "lazy text but still working",
			scrollback: "What would you like me to do next?\nActually, continuing with the fix\nwriting file",
			want:       false,
		},
		{
			name:       "prompt without lazy text",
			scrollback: "make build\n$",
			want:       false,
		},
		{
			name:       "empty scrollback",
			scrollback: "",
			want:       false,
		},
	}
	for _, tc := range cases {
		if got := d.Detect(tc.scrollback); got != tc.want {
			t.Errorf("%s: Detect = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLazyDetectorCustomPatterns(t *testing.T) {
	d := newLazyDetector([]string{`(?i)giving up`, `[invalid`})
	if len(d.patterns) != 1 {
		t.Fatalf("compiled patterns = %d, want 1 (invalid skipped)", len(d.patterns))
	}
	if !d.Detect("I am giving up on this.\n$") {
		t.Error("custom pattern should match")
	}
	if d.Detect("What would you like me to do next?") {
		t.Error("default patterns should be replaced, not merged")
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	if got := lastNonEmptyLine("a\nb\n\n  \n"); got != "b" {
		t.Errorf("lastNonEmptyLine = %q, want b", got)
	}
	if got := lastNonEmptyLine("\n\n"); got != "" {
		t.Errorf("lastNonEmptyLine on blanks = %q, want empty", got)
	}
}
