package router

import "sort"

// Work-type identifiers form a closed set. Resolution of anything else
// fails fast.
const (
	WorkExploration    = "issue-agent:exploration"
	WorkImplementation = "issue-agent:implementation"
	WorkReview         = "specialist-review-agent"
	WorkTest           = "specialist-test-agent"
	WorkMerge          = "specialist-merge-agent"
	WorkPlan           = "specialist-plan-agent"
	WorkSubagentBash   = "subagent:bash"
	WorkSubagentSearch = "subagent:search"
	WorkQuickCommand   = "cli:quick-command"
)

// workTypes is the closed set of valid identifiers.
var workTypes = map[string]bool{
	WorkExploration:    true,
	WorkImplementation: true,
	WorkReview:         true,
	WorkTest:           true,
	WorkMerge:          true,
	WorkPlan:           true,
	WorkSubagentBash:   true,
	WorkSubagentSearch: true,
	WorkQuickCommand:   true,
}

// WorkTypes returns the valid work-type identifiers, sorted.
func WorkTypes() []string {
	out := make([]string, 0, len(workTypes))
	for wt := range workTypes {
		out = append(out, wt)
	}
	sort.Strings(out)
	return out
}

// modelProviders maps every known model id to its provider. Overrides
// referencing a model outside this table fail validation at load.
var modelProviders = map[string]string{
	"claude-opus-4":    "anthropic",
	"claude-sonnet-4":  "anthropic",
	"claude-haiku-4":   "anthropic",
	"gpt-5":            "openai",
	"gpt-5-mini":       "openai",
	"gemini-2.5-pro":   "google",
	"gemini-2.5-flash": "google",
}

// DefaultFallbackModel is substituted when a resolved model's provider is
// not enabled. It must belong to the always-available provider.
const DefaultFallbackModel = "claude-sonnet-4"

// presets maps preset name to the work-type default table.
var presets = map[string]map[string]string{
	"quality": {
		WorkExploration:    "claude-opus-4",
		WorkImplementation: "claude-opus-4",
		WorkReview:         "claude-opus-4",
		WorkTest:           "claude-sonnet-4",
		WorkMerge:          "claude-sonnet-4",
		WorkPlan:           "claude-opus-4",
		WorkSubagentBash:   "claude-haiku-4",
		WorkSubagentSearch: "claude-haiku-4",
		WorkQuickCommand:   "claude-haiku-4",
	},
	"balanced": {
		WorkExploration:    "claude-sonnet-4",
		WorkImplementation: "claude-sonnet-4",
		WorkReview:         "gpt-5",
		WorkTest:           "claude-sonnet-4",
		WorkMerge:          "claude-sonnet-4",
		WorkPlan:           "claude-opus-4",
		WorkSubagentBash:   "claude-haiku-4",
		WorkSubagentSearch: "gemini-2.5-flash",
		WorkQuickCommand:   "claude-haiku-4",
	},
	"budget": {
		WorkExploration:    "claude-haiku-4",
		WorkImplementation: "claude-sonnet-4",
		WorkReview:         "gpt-5-mini",
		WorkTest:           "claude-haiku-4",
		WorkMerge:          "claude-haiku-4",
		WorkPlan:           "claude-sonnet-4",
		WorkSubagentBash:   "claude-haiku-4",
		WorkSubagentSearch: "gemini-2.5-flash",
		WorkQuickCommand:   "claude-haiku-4",
	},
}

// DefaultPreset is used when the config names no preset.
const DefaultPreset = "balanced"
