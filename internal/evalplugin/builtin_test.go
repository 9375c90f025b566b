package evalplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGet(t *testing.T, id string) CheckFunc {
	t.Helper()
	fn, ok := Builtins.Get(id)
	require.True(t, ok, "builtin %q not registered", id)
	return fn
}

func TestCorrectOutput_MatchAndMismatch(t *testing.T) {
	fn := mustGet(t, "correct_output")

	resp, err := fn(CheckRequest{Output: "Fizz", Expected: "Fizz"})
	require.NoError(t, err)
	assert.True(t, resp.Satisfied)

	resp, err = fn(CheckRequest{Output: "Fizz", Expected: "Buzz"})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied)
}

func TestCorrectOutput_SandboxErrorNeverSatisfied(t *testing.T) {
	fn := mustGet(t, "correct_output")
	resp, err := fn(CheckRequest{Err: &SandboxErrorInfo{Type: "RuntimeException", Message: "boom"}})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied)
}

func TestNoMutation(t *testing.T) {
	fn := mustGet(t, "no_mutation")

	before := map[string]any{"a": float64(1)}
	after := map[string]any{"a": float64(1)}
	resp, err := fn(CheckRequest{InputBefore: before, InputAfter: after})
	require.NoError(t, err)
	assert.True(t, resp.Satisfied)

	mutated := map[string]any{"a": float64(2)}
	resp, err = fn(CheckRequest{InputBefore: before, InputAfter: mutated})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied)
}

func TestDeterministic(t *testing.T) {
	fn := mustGet(t, "deterministic")

	resp, err := fn(CheckRequest{Output: "x", RepeatOutput: "x", RepeatComputed: true})
	require.NoError(t, err)
	assert.True(t, resp.Satisfied)

	resp, err = fn(CheckRequest{Output: "x", RepeatOutput: "y", RepeatComputed: true})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied)

	_, err = fn(CheckRequest{Output: "x", RepeatOutput: "x"})
	assert.Error(t, err, "must require RepeatComputed")
}

func TestCorrectType(t *testing.T) {
	fn := mustGet(t, "correct_type")

	resp, err := fn(CheckRequest{Output: []any{float64(1), float64(2)}, Expected: []any{float64(9)}})
	require.NoError(t, err)
	assert.True(t, resp.Satisfied)

	resp, err = fn(CheckRequest{Output: "a string", Expected: float64(1)})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied)
}

func TestCorrectError(t *testing.T) {
	fn := mustGet(t, "correct_error")

	resp, err := fn(CheckRequest{
		Err:      &SandboxErrorInfo{Type: "RuntimeException", Message: "division by zero"},
		Expected: map[string]any{"type": "RuntimeException", "message_contains": "division"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Satisfied)

	resp, err = fn(CheckRequest{Err: nil, Expected: map[string]any{"type": "RuntimeException"}})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied, "no error raised at all")

	resp, err = fn(CheckRequest{
		Err:      &SandboxErrorInfo{Type: "ImportViolation", Message: "nope"},
		Expected: map[string]any{"type": "RuntimeException"},
	})
	require.NoError(t, err)
	assert.False(t, resp.Satisfied, "wrong error type")
}

func TestAllFiveArchetypesRegistered(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"correct_error", "correct_output", "correct_type", "deterministic", "no_mutation",
	}, Builtins.Names())
}
