package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redush-com/SaotriBench/internal/evaluator"
	"github.com/redush-com/SaotriBench/internal/taskspec"
)

func phaseWithTwoRules() *taskspec.Phase {
	return &taskspec.Phase{
		ID: 0,
		Rules: []taskspec.Rule{
			{ID: "correct_output", Scopes: []string{"a", "b"}},
			{ID: "no_mutation", Scopes: []string{"direct", "nested"}},
		},
	}
}

func TestBuild_AllValid(t *testing.T) {
	f := Build(phaseWithTwoRules(), 1, nil, 1.0, 2, nil, nil)

	assert.Equal(t, StatusValid, f.Status)
	assert.Empty(t, f.Violations)
	assert.Equal(t, 2, f.Summary.RulesTotal)
	assert.Equal(t, 2, f.Summary.RulesPassed)
	assert.Equal(t, 0, f.Summary.RulesFailed)
	assert.Equal(t, 0.0, f.Delta.CoverageChange)
	assert.Empty(t, f.Delta.NewFailures)
}

func TestBuild_AllInvalid_EveryRuleFailsEveryTest(t *testing.T) {
	raw := []evaluator.RawViolation{
		{RuleID: "correct_output", Scope: "a"},
		{RuleID: "correct_output", Scope: "b"},
		{RuleID: "no_mutation", Scope: "direct"},
		{RuleID: "no_mutation", Scope: "direct"},
	}
	f := Build(phaseWithTwoRules(), 1, raw, 0.0, 2, nil, nil)

	assert.Equal(t, StatusInvalid, f.Status)
	assert.Equal(t, 0, f.Summary.RulesPassed)
	assert.Equal(t, 2, f.Summary.RulesFailed)
}

func TestBuild_PartiallyValid(t *testing.T) {
	raw := []evaluator.RawViolation{
		{RuleID: "correct_output", Scope: "a"},
	}
	f := Build(phaseWithTwoRules(), 1, raw, 0.5, 2, nil, nil)

	assert.Equal(t, StatusPartiallyValid, f.Status)
	assert.Equal(t, 1, f.Summary.RulesFailed)
	assert.Equal(t, 1, f.Summary.RulesPassed)
}

func TestBuild_ExecutionError(t *testing.T) {
	execErr := &evaluator.ExecutionError{Type: "Timeout", Message: "exceeded 2s"}
	f := Build(phaseWithTwoRules(), 1, nil, 0, 2, nil, execErr)

	assert.Equal(t, StatusError, f.Status)
	require.NotNil(t, f.Error)
	assert.Equal(t, "Timeout", f.Error.Type)
	assert.Equal(t, 0.0, f.Summary.Coverage)
}

func TestBuild_AggregatesByRawScopeBeforeObfuscation(t *testing.T) {
	raw := []evaluator.RawViolation{
		{RuleID: "no_mutation", Scope: "some_task_specific_scope"},
		{RuleID: "no_mutation", Scope: "some_task_specific_scope"},
	}
	f := Build(phaseWithTwoRules(), 1, raw, 0.0, 2, nil, nil)

	require.Len(t, f.Violations, 1)
	assert.Equal(t, 2, f.Violations[0].Count)
	assert.Equal(t, ObfuscateScope("some_task_specific_scope"), f.Violations[0].Scope)
}

func TestBuild_DeltaTracksNewAndFixedFailures(t *testing.T) {
	priorRaw := []evaluator.RawViolation{
		{RuleID: "correct_output", Scope: "a"},
	}
	prior := Build(phaseWithTwoRules(), 1, priorRaw, 0.5, 2, nil, nil)

	currentRaw := []evaluator.RawViolation{
		{RuleID: "no_mutation", Scope: "direct"},
	}
	current := Build(phaseWithTwoRules(), 2, currentRaw, 0.5, 2, prior, nil)

	assert.Equal(t, []string{"no_mutation"}, current.Delta.NewFailures)
	assert.Equal(t, []string{"correct_output"}, current.Delta.FixedFailures)
	assert.Equal(t, 0.0, current.Delta.CoverageChange)
}
