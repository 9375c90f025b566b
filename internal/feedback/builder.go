package feedback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/redush-com/SaotriBench/internal/evaluator"
	"github.com/redush-com/SaotriBench/internal/taskspec"
)

type violationKey struct {
	ruleID string
	scope  string
}

// Build implements spec.md §4.4's contract: aggregate raw, pre-obfuscation
// violations by (rule_id, scope), classify status, compute the summary and
// the delta against prior, and obfuscate scopes only at the very end so
// aggregation itself is never affected by hash collisions (Testable
// Property 5).
func Build(phase *taskspec.Phase, attemptID int, raw []evaluator.RawViolation, coverage float64, liveTestCount int, prior *Feedback, execErr *evaluator.ExecutionError) *Feedback {
	if execErr != nil {
		return &Feedback{
			PhaseID:      phase.ID,
			AttemptID:    attemptID,
			Status:       StatusError,
			StatusReason: fmt.Sprintf("%s: %s", execErr.Type, execErr.Message),
			Violations:   []Violation{},
			Summary:      Summary{RulesTotal: len(phase.Rules), RulesPassed: 0, RulesFailed: len(phase.Rules), Coverage: 0},
			Delta:        computeDelta(0, nil, prior),
			Error:        &ExecutionError{Type: string(execErr.Type), Message: execErr.Message, Phase: phase.ID},
		}
	}

	counts := make(map[violationKey]int)
	ruleFailures := make(map[string]int)
	for _, v := range raw {
		counts[violationKey{v.RuleID, v.Scope}]++
		ruleFailures[v.RuleID]++
	}

	keys := make([]violationKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ruleID != keys[j].ruleID {
			return keys[i].ruleID < keys[j].ruleID
		}
		return keys[i].scope < keys[j].scope
	})

	violations := make([]Violation, 0, len(keys))
	for _, k := range keys {
		violations = append(violations, Violation{
			RuleID: k.ruleID,
			Scope:  ObfuscateScope(k.scope),
			Count:  counts[k],
		})
	}

	failingRuleIDs := make([]string, 0, len(ruleFailures))
	for id := range ruleFailures {
		failingRuleIDs = append(failingRuleIDs, id)
	}
	sort.Strings(failingRuleIDs)

	rulesTotal := len(phase.Rules)
	rulesFailed := len(failingRuleIDs)
	rulesPassed := rulesTotal - rulesFailed

	status := classifyStatus(coverage, violations, phase, ruleFailures, liveTestCount)

	f := &Feedback{
		PhaseID:      phase.ID,
		AttemptID:    attemptID,
		Status:       status,
		StatusReason: statusReason(status, failingRuleIDs),
		Violations:   violations,
		Summary: Summary{
			RulesTotal:  rulesTotal,
			RulesPassed: rulesPassed,
			RulesFailed: rulesFailed,
			Coverage:    coverage,
		},
		Delta:          computeDelta(coverage, failingRuleIDs, prior),
		failingRuleIDs: failingRuleIDs,
	}
	return f
}

func classifyStatus(coverage float64, violations []Violation, phase *taskspec.Phase, ruleFailures map[string]int, liveTestCount int) Status {
	if len(violations) == 0 && coverage == 1.0 {
		return StatusValid
	}
	if coverage == 0.0 && everyRuleFailedEveryTest(phase, ruleFailures, liveTestCount) {
		return StatusInvalid
	}
	return StatusPartiallyValid
}

func everyRuleFailedEveryTest(phase *taskspec.Phase, ruleFailures map[string]int, liveTestCount int) bool {
	if liveTestCount == 0 {
		return false
	}
	for _, rule := range phase.Rules {
		if ruleFailures[rule.ID] != liveTestCount {
			return false
		}
	}
	return true
}

func statusReason(status Status, failingRuleIDs []string) string {
	switch status {
	case StatusValid:
		return "all rules satisfied"
	case StatusInvalid:
		return fmt.Sprintf("all rules failed: %s", strings.Join(failingRuleIDs, ", "))
	case StatusPartiallyValid:
		return fmt.Sprintf("failed rules: %s", strings.Join(failingRuleIDs, ", "))
	default:
		return ""
	}
}

func computeDelta(coverage float64, failingRuleIDs []string, prior *Feedback) Delta {
	if prior == nil {
		return Delta{CoverageChange: 0, NewFailures: []string{}, FixedFailures: []string{}}
	}

	priorSet := toSet(prior.FailingRuleIDs())
	currentSet := toSet(failingRuleIDs)

	var newFailures, fixedFailures []string
	for id := range currentSet {
		if !priorSet[id] {
			newFailures = append(newFailures, id)
		}
	}
	for id := range priorSet {
		if !currentSet[id] {
			fixedFailures = append(fixedFailures, id)
		}
	}
	sort.Strings(newFailures)
	sort.Strings(fixedFailures)

	return Delta{
		CoverageChange: coverage - prior.Summary.Coverage,
		NewFailures:    nonNil(newFailures),
		FixedFailures:  nonNil(fixedFailures),
	}
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
