package evalplugin

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/redush-com/SaotriBench/internal/registry"
)

// CheckFunc is the built-in-archetype equivalent of RuleChecker.Check: a
// plain function registered under a rule id, so the common archetypes from
// spec.md §4.3 need no plugin binary at all.
type CheckFunc func(req CheckRequest) (CheckResponse, error)

// Builtins holds the standard rule archetypes the core ships with. Tasks
// reference them by rule id directly; anything not found here falls back to
// an evaluator_plugin binary.
var Builtins = registry.New[CheckFunc]()

func init() {
	mustRegister("correct_output", checkCorrectOutput)
	mustRegister("no_mutation", checkNoMutation)
	mustRegister("deterministic", checkDeterministic)
	mustRegister("correct_type", checkCorrectType)
	mustRegister("correct_error", checkCorrectError)
}

func mustRegister(id string, fn CheckFunc) {
	if err := Builtins.Register(id, fn); err != nil {
		panic(fmt.Sprintf("evalplugin: registering builtin %q: %v", id, err))
	}
}

// checkCorrectOutput compares callable(deepcopy(tc.input)) to tc.expected,
// per spec.md §4.3. Scope is supplied by the caller (derived from the live
// test case's tag), not computed here.
func checkCorrectOutput(req CheckRequest) (CheckResponse, error) {
	if req.Err != nil {
		return CheckResponse{Satisfied: false, Reason: fmt.Sprintf("call raised %s: %s", req.Err.Type, req.Err.Message)}, nil
	}
	if !deepEqual(req.Output, req.Expected) {
		return CheckResponse{
			Satisfied: false,
			Reason:    fmt.Sprintf("expected %v, got %v", req.Expected, req.Output),
		}, nil
	}
	return CheckResponse{Satisfied: true}, nil
}

// checkNoMutation asserts the pre-call deep copy equals the post-call
// original, per spec.md §4.3/§6 invariant 2. Scope is "direct" unless the
// caller has already classified the mutation as nested.
func checkNoMutation(req CheckRequest) (CheckResponse, error) {
	if req.Err != nil {
		// A call that raised cannot have mutated observably beyond what
		// already happened before the exception; treat as satisfied so a
		// RuntimeException is reported once, not double-counted here.
		return CheckResponse{Satisfied: true}, nil
	}
	if !deepEqual(req.InputBefore, req.InputAfter) {
		return CheckResponse{
			Satisfied: false,
			Reason:    fmt.Sprintf("argument mutated: before=%v after=%v", req.InputBefore, req.InputAfter),
		}, nil
	}
	return CheckResponse{Satisfied: true}, nil
}

// checkDeterministic compares two independent invocations with identical
// deep-copied input. Scope "ordering" per spec.md §4.3.
func checkDeterministic(req CheckRequest) (CheckResponse, error) {
	if !req.RepeatComputed {
		return CheckResponse{}, fmt.Errorf("evalplugin: deterministic check requires RepeatComputed")
	}
	if req.Err != nil || req.RepeatErr != nil {
		if (req.Err == nil) != (req.RepeatErr == nil) {
			return CheckResponse{Satisfied: false, Reason: "call raised on one invocation but not the other"}, nil
		}
		return CheckResponse{Satisfied: true}, nil
	}
	if !deepEqual(req.Output, req.RepeatOutput) {
		return CheckResponse{
			Satisfied: false,
			Reason:    fmt.Sprintf("non-deterministic output: %v vs %v", req.Output, req.RepeatOutput),
		}, nil
	}
	return CheckResponse{Satisfied: true}, nil
}

// checkCorrectType performs a structural shape check between Output and
// Expected: same Go kind after JSON decoding (map/slice/string/float/bool/
// nil), recursively for maps and slices. It does not compare values.
func checkCorrectType(req CheckRequest) (CheckResponse, error) {
	if req.Err != nil {
		return CheckResponse{Satisfied: false, Reason: fmt.Sprintf("call raised %s: %s", req.Err.Type, req.Err.Message)}, nil
	}
	if !sameShape(req.Output, req.Expected) {
		return CheckResponse{
			Satisfied: false,
			Reason:    fmt.Sprintf("return shape mismatch: expected shape of %T, got %T", req.Expected, req.Output),
		}, nil
	}
	return CheckResponse{Satisfied: true}, nil
}

// checkCorrectError asserts the call raised, classified by Err.Type. The
// expected error type/substring travels in req.Expected as a
// map[string]any{"type": ..., "message_contains": ...}: the evaluator passes
// the test case's expected value through unchanged.
func checkCorrectError(req CheckRequest) (CheckResponse, error) {
	if req.Err == nil {
		return CheckResponse{Satisfied: false, Reason: "expected an error, call succeeded"}, nil
	}
	spec, _ := req.Expected.(map[string]any)
	if wantType, ok := spec["type"].(string); ok && wantType != "" && wantType != req.Err.Type {
		return CheckResponse{
			Satisfied: false,
			Reason:    fmt.Sprintf("expected error type %s, got %s", wantType, req.Err.Type),
		}, nil
	}
	if substr, ok := spec["message_contains"].(string); ok && substr != "" {
		if !strings.Contains(req.Err.Message, substr) {
			return CheckResponse{
				Satisfied: false,
				Reason:    fmt.Sprintf("error message %q does not contain %q", req.Err.Message, substr),
			}, nil
		}
	}
	return CheckResponse{Satisfied: true}, nil
}

func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func sameShape(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() != bv.Kind() {
		return false
	}
	switch av.Kind() {
	case reflect.Slice:
		if av.Len() == 0 || bv.Len() == 0 {
			return true
		}
		return sameShape(av.Index(0).Interface(), bv.Index(0).Interface())
	case reflect.Map:
		for _, k := range av.MapKeys() {
			bve := bv.MapIndex(k)
			if !bve.IsValid() {
				return false
			}
			if !sameShape(av.MapIndex(k).Interface(), bve.Interface()) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
