package supervisor

import (
	"regexp"
	"strings"
)

// defaultLazyPatterns flag scrollback that reads like the agent is
// stalling instead of finishing its task. Tunable via [lazy] patterns
// in panopticon.toml.
var defaultLazyPatterns = []string{
	`(?i)what would you like me to do`,
	`(?i)would you like me to (proceed|continue)`,
	`(?i)should i (proceed|continue)`,
	`(?i)let me know (how|if) you('d| would) like`,
	`(?i)deferred to (a )?future PR`,
	`(?i)requires human`,
	`(?i)awaiting (your )?(instructions|confirmation|input)`,
	`(?m)^\s*\d+\.\s.+\n\s*\d+\.\s`, // numbered option lists
}

// antiLazyMessage is the fixed wake-up text sent when lazy behavior is
// detected.
const antiLazyMessage = "Do not wait for confirmation. Continue with the task you were given and complete it end to end. If you are truly blocked, state the exact blocker."

// promptEndings are the line suffixes that indicate a shell or agent
// prompt waiting for input.
var promptEndings = []string{"$", "#", ">", "?"}

// lazyDetector compiles the pattern table once at startup.
type lazyDetector struct {
	patterns []*regexp.Regexp
}

// newLazyDetector compiles the given patterns, falling back to the
// built-in set when none are configured. Invalid patterns are skipped.
func newLazyDetector(patterns []string) *lazyDetector {
	if len(patterns) == 0 {
		patterns = defaultLazyPatterns
	}
	d := &lazyDetector{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		d.patterns = append(d.patterns, re)
	}
	return d
}

// Detect reports whether the scrollback looks like a stalled agent:
// the last non-empty line ends like a prompt and any lazy pattern
// matches the output.
func (d *lazyDetector) Detect(scrollback string) bool {
	last := lastNonEmptyLine(scrollback)
	if last == "" || !endsLikePrompt(last) {
		return false
	}
	for _, re := range d.patterns {
		if re.MatchString(scrollback) {
			return true
		}
	}
	return false
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func endsLikePrompt(line string) bool {
	for _, suffix := range promptEndings {
		if strings.HasSuffix(line, suffix) {
			return true
		}
	}
	return false
}
