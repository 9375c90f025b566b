package testcase

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTests(t *testing.T, cases []TestCase) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.json")
	raw, err := json.Marshal(cases)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLoadAndLive(t *testing.T) {
	path := writeTests(t, []TestCase{
		{Input: float64(3), Expected: "Fizz", Phase: 0, Tags: []string{"divisible_by_3"}},
		{Input: float64(5), Expected: "Buzz", Phase: 0, Tags: []string{"divisible_by_5"}},
		{Input: float64(7), Expected: "Bazz", Phase: 1, Tags: []string{"divisible_by_7"}},
	})

	store, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	phase0 := store.Live(0)
	assert.Len(t, phase0, 2)

	phase1 := store.Live(1)
	assert.Len(t, phase1, 3, "a test introduced in phase 0 stays live forever")
}

func TestHasLiveCase(t *testing.T) {
	path := writeTests(t, []TestCase{
		{Input: float64(1), Expected: "1", Phase: 2},
	})

	store, err := Load(path)
	require.NoError(t, err)

	assert.False(t, store.HasLiveCase(0))
	assert.False(t, store.HasLiveCase(1))
	assert.True(t, store.HasLiveCase(2))
}

func TestCopyInput_DeepCopyIsIndependent(t *testing.T) {
	tc := TestCase{Input: map[string]any{"nested": []any{float64(1), float64(2)}}}

	copy1, err := tc.CopyInput()
	require.NoError(t, err)

	asMap, ok := copy1.(map[string]any)
	require.True(t, ok)
	asMap["nested"] = "mutated"

	// original untouched
	original := tc.Input.(map[string]any)
	assert.NotEqual(t, "mutated", original["nested"])
}

func TestPrimaryTag(t *testing.T) {
	withTags := TestCase{Tags: []string{"direct", "extra"}}
	assert.Equal(t, "direct", withTags.PrimaryTag())

	without := TestCase{}
	assert.Equal(t, "", without.PrimaryTag())
}
