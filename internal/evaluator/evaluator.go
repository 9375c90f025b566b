// Package evaluator drives a loaded sandbox callable against a phase's
// rules and the live test case slice, producing raw violations and a
// coverage fraction, per spec.md §4.3.
package evaluator

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/redush-com/SaotriBench/internal/evalplugin"
	"github.com/redush-com/SaotriBench/internal/sandbox"
	"github.com/redush-com/SaotriBench/internal/taskspec"
	"github.com/redush-com/SaotriBench/internal/testcase"
)

// repeatRules lists rule ids that require a second, independently
// deep-copied call to compare against, per spec.md §4.3 ("rules that require
// comparison against a reference ... may call multiple times"). The
// built-in catalog only has one such archetype; a plugin-backed rule that
// needs the same treatment is a case the current mechanism does not cover:
// such a rule is checked without a repeat call.
var repeatRules = map[string]bool{
	"deterministic": true,
}

// ExecutionError short-circuits an entire evaluation pass: spec.md §4.2/§7
// treat a Timeout as abandoning the whole attempt rather than scoping the
// failure to one test/rule, since the sandboxed process is killed and
// cannot evaluate further tests.
type ExecutionError struct {
	Type    sandbox.ErrorType
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// RawViolation is one (rule, test) failure, pre-aggregation and
// pre-obfuscation; Feedback Builder groups these by (RuleID, Scope).
type RawViolation struct {
	RuleID string
	Scope  string
}

// RuleResolver looks up a check function for a rule id, trying built-in
// archetypes first and falling back to a loaded evaluator_plugin.
type RuleResolver struct {
	plugin *evalplugin.Client
}

// NewRuleResolver builds a resolver; plugin may be nil if the task ships no
// evaluator_plugin.
func NewRuleResolver(plugin *evalplugin.Client) *RuleResolver {
	return &RuleResolver{plugin: plugin}
}

func (r *RuleResolver) resolve(ruleID string) (evalplugin.RuleChecker, bool) {
	if fn, ok := evalplugin.Builtins.Get(ruleID); ok {
		return checkFuncAdapter{fn}, true
	}
	if r.plugin != nil {
		return r.plugin, true
	}
	return nil, false
}

type checkFuncAdapter struct {
	fn evalplugin.CheckFunc
}

func (a checkFuncAdapter) Check(req evalplugin.CheckRequest) (evalplugin.CheckResponse, error) {
	return a.fn(req)
}

// Evaluator runs phase.Rules against a phase's live test cases.
type Evaluator struct {
	resolver *RuleResolver
}

// New creates an Evaluator.
func New(resolver *RuleResolver) *Evaluator {
	return &Evaluator{resolver: resolver}
}

// Evaluate implements spec.md §4.3's contract: for every live test case and
// every rule in the phase, resolve and invoke the appropriate check,
// aggregating raw violations and the whole-test coverage fraction.
func (e *Evaluator) Evaluate(ctx context.Context, callable *sandbox.Callable, store *testcase.Store, phase *taskspec.Phase, timeout time.Duration) ([]RawViolation, float64, *ExecutionError) {
	tests := store.Live(phase.ID)
	if len(tests) == 0 {
		return nil, 0, nil
	}

	var violations []RawViolation
	passedCount := 0

	for _, tc := range tests {
		testPassed, tv, execErr := e.evaluateTest(ctx, callable, tc, phase, timeout)
		if execErr != nil {
			return nil, 0, execErr
		}
		violations = append(violations, tv...)
		if testPassed {
			passedCount++
		}
	}

	coverage := float64(passedCount) / float64(len(tests))
	return violations, coverage, nil
}

func (e *Evaluator) evaluateTest(ctx context.Context, callable *sandbox.Callable, tc testcase.TestCase, phase *taskspec.Phase, timeout time.Duration) (bool, []RawViolation, *ExecutionError) {
	callArg, err := tc.CopyInput()
	if err != nil {
		return false, failAllRules(phase, "error"), nil
	}

	result, callErr := callable.Call(ctx, callArg, timeout)

	// A non-timeout call error (the callable raised) does not short-circuit
	// the whole test: it is carried into every rule's CheckRequest.Err so an
	// archetype like correct_error can judge whether the raise was expected,
	// per spec.md §4.3.
	var sandboxErr *evalplugin.SandboxErrorInfo
	if callErr != nil {
		sbErr, _ := callErr.(*sandbox.Error)
		if sbErr != nil && sbErr.Type == sandbox.ErrorTimeout {
			return false, nil, &ExecutionError{Type: sandbox.ErrorTimeout, Message: sbErr.Message}
		}
		if sbErr != nil {
			sandboxErr = &evalplugin.SandboxErrorInfo{Type: string(sbErr.Type), Message: sbErr.Message}
		} else {
			sandboxErr = &evalplugin.SandboxErrorInfo{Type: string(sandbox.ErrorRuntime), Message: callErr.Error()}
		}
	}

	testPassed := true
	var violations []RawViolation

	for _, rule := range phase.Rules {
		checker, ok := e.resolver.resolve(rule.ID)
		if !ok {
			// No checker available for a declared rule is a configuration
			// problem caught by static validation, not a runtime failure;
			// treat conservatively as a failure so it is never silently
			// skipped.
			testPassed = false
			violations = append(violations, RawViolation{RuleID: rule.ID, Scope: "unknown"})
			continue
		}

		req := evalplugin.CheckRequest{
			RuleID:      rule.ID,
			PhaseID:     phase.ID,
			Input:       tc.Input,
			Expected:    tc.Expected,
			Err:         sandboxErr,
			InputBefore: tc.Input,
		}
		if sandboxErr == nil {
			req.Output = result.Output
			req.InputAfter = result.InputAfter
		}

		if sandboxErr == nil && repeatRules[rule.ID] {
			repeatArg, err := tc.CopyInput()
			if err == nil {
				repeatResult, repeatErr := callable.Call(ctx, repeatArg, timeout)
				req.RepeatComputed = true
				if repeatErr != nil {
					if sbErr, ok := repeatErr.(*sandbox.Error); ok {
						req.RepeatErr = &evalplugin.SandboxErrorInfo{Type: string(sbErr.Type), Message: sbErr.Message}
					}
				} else {
					req.RepeatOutput = repeatResult.Output
				}
			}
		}

		resp, err := checker.Check(req)
		if err != nil {
			// An evaluator-internal failure never crashes the run,
			// per spec.md §7: treated as failed(scope="error").
			testPassed = false
			violations = append(violations, RawViolation{RuleID: rule.ID, Scope: "error"})
			continue
		}

		if !resp.Satisfied {
			testPassed = false
			scope := "error"
			if sandboxErr == nil {
				scope = scopeFor(rule, tc, rule.ID, result.InputAfter)
			}
			violations = append(violations, RawViolation{RuleID: rule.ID, Scope: scope})
		}
	}

	return testPassed, violations, nil
}

func failAllRules(phase *taskspec.Phase, scope string) []RawViolation {
	out := make([]RawViolation, 0, len(phase.Rules))
	for _, rule := range phase.Rules {
		out = append(out, RawViolation{RuleID: rule.ID, Scope: scope})
	}
	return out
}

// scopeFor derives the scope for a rule failure on a test case: if the
// test's primary tag is one of the rule's declared scopes, use it (this is
// the "tc.tags[0]" convention spec.md §4.3 names for correct_output and
// generalizes naturally to any rule); otherwise fall back to the rule's
// archetype-specific scope, or "unknown" for anything else.
func scopeFor(rule taskspec.Rule, tc testcase.TestCase, ruleID string, inputAfter any) string {
	if tag := tc.PrimaryTag(); tag != "" && scopeDeclared(rule, tag) {
		return tag
	}
	switch ruleID {
	case "no_mutation":
		return classifyMutationScope(tc.Input, inputAfter)
	case "deterministic":
		return "ordering"
	default:
		return "unknown"
	}
}

func scopeDeclared(rule taskspec.Rule, scope string) bool {
	for _, s := range rule.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// classifyMutationScope distinguishes a top-level mutation ("direct" - the
// argument's own length or key set changed) from a mutation confined to a
// nested element ("nested" - same top-level shape, but a contained value
// differs), per spec.md §4.3's scope vocabulary for no_mutation. This is a
// best-effort structural classifier, not a precise diff.
func classifyMutationScope(before, after any) string {
	bv, av := reflect.ValueOf(before), reflect.ValueOf(after)
	if !bv.IsValid() || !av.IsValid() || bv.Kind() != av.Kind() {
		return "direct"
	}

	switch bv.Kind() {
	case reflect.Slice:
		if bv.Len() != av.Len() {
			return "direct"
		}
		return "nested"
	case reflect.Map:
		if bv.Len() != av.Len() {
			return "direct"
		}
		for _, k := range bv.MapKeys() {
			if !av.MapIndex(k).IsValid() {
				return "direct"
			}
		}
		return "nested"
	default:
		return "direct"
	}
}
