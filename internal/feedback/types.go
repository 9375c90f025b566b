// Package feedback converts raw evaluator violations into the agent-visible
// Feedback wire record, per spec.md §4.4: aggregation by (rule_id, scope),
// status classification, delta against the prior attempt, and deterministic
// scope obfuscation.
package feedback

// Violation is one aggregated (rule_id, scope) failure, counted across all
// tests that produced it, per spec.md §3.
type Violation struct {
	RuleID string `json:"rule_id"`
	Scope  string `json:"scope"`
	Count  int    `json:"count"`
}

// Summary is the rule-level pass/fail tally plus coverage.
type Summary struct {
	RulesTotal  int     `json:"rules_total"`
	RulesPassed int     `json:"rules_passed"`
	RulesFailed int     `json:"rules_failed"`
	Coverage    float64 `json:"coverage"`
}

// Delta compares this attempt's failing rule set against the most recent
// prior attempt's, per spec.md §4.4.
type Delta struct {
	CoverageChange float64  `json:"coverage_change"`
	NewFailures    []string `json:"new_failures"`
	FixedFailures  []string `json:"fixed_failures"`
}

// ExecutionError reports a sandbox-level failure that short-circuited the
// whole attempt (load failure or a call Timeout).
type ExecutionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Phase   int    `json:"phase"`
}

// Status is Feedback's classification per spec.md §4.4.
type Status string

const (
	StatusError          Status = "error"
	StatusValid          Status = "valid"
	StatusInvalid        Status = "invalid"
	StatusPartiallyValid Status = "partially_valid"
)

// Feedback is the wire record written to the workspace `feedback` file
// after every counted attempt, and embedded as `implicit_evaluation` in a
// `phase` announcement.
type Feedback struct {
	PhaseID      int             `json:"phase_id"`
	AttemptID    int             `json:"attempt_id,omitempty"`
	Status       Status          `json:"status"`
	StatusReason string          `json:"status_reason"`
	Violations   []Violation     `json:"violations"`
	Summary      Summary         `json:"summary"`
	Delta        Delta           `json:"delta"`
	Error        *ExecutionError `json:"error,omitempty"`

	// failingRuleIDs is retained unexported for the next Feedback's delta
	// computation; it is not part of the wire shape.
	failingRuleIDs []string
}

// FailingRuleIDs returns the sorted rule ids with at least one violation, to
// seed the next attempt's Delta.
func (f *Feedback) FailingRuleIDs() []string {
	return f.failingRuleIDs
}
