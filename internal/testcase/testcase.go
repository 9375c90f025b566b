// Package testcase loads and serves the ordered test case sequence a task
// ships in tests.json. CopyInput hands out a deep copy of a test's input for
// passing to a sandboxed callable; All and Live return TestCase records that
// share their Input and Expected values with the stored originals.
package testcase

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tiendc/go-deepcopy"
)

// TestCase is one hidden test record. Input and Expected are arbitrary JSON
// values (decoded into any: maps, slices, scalars), the polymorphic
// tagged-union value type design notes call for in a typed target language.
type TestCase struct {
	Input    any      `json:"input"`
	Expected any      `json:"expected"`
	Phase    int      `json:"phase"`
	Tags     []string `json:"tags,omitempty"`
}

// PrimaryTag returns the first tag, or "" if untagged. correct_output uses
// this to classify a failure's scope when the task doesn't supply a
// task-specific classifier.
func (tc *TestCase) PrimaryTag() string {
	if len(tc.Tags) == 0 {
		return ""
	}
	return tc.Tags[0]
}

// CopyInput returns a deep copy of Input, safe for an evaluator to hand to
// a sandboxed callable that might mutate it.
func (tc *TestCase) CopyInput() (any, error) {
	var out any
	if err := deepcopy.Copy(&out, tc.Input); err != nil {
		return nil, fmt.Errorf("testcase: deep-copying input: %w", err)
	}
	return out, nil
}

// Store is the ordered, read-only sequence of test cases for one task,
// safe to share across sequential attempts (spec.md §5, "evaluator and test
// store are read-only after load").
type Store struct {
	cases []TestCase
}

// New builds a Store directly from an in-memory slice, for callers that
// construct test cases programmatically (tests, or a plugin-fed store)
// rather than loading tests.json from disk.
func New(cases []TestCase) *Store {
	return &Store{cases: cases}
}

// Load parses a tests.json file into a Store.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testcase: reading %s: %w", path, err)
	}

	var cases []TestCase
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("testcase: parsing %s: %w", path, err)
	}

	return &Store{cases: cases}, nil
}

// All returns every test case, in descriptor order.
func (s *Store) All() []TestCase {
	return s.cases
}

// Len returns the total number of test cases (all phases).
func (s *Store) Len() int {
	return len(s.cases)
}

// Live returns the test cases live at phaseID: those whose declared phase is
// <= phaseID. A test introduced in phase k is live forever from phase k on,
// which is what makes phase k+1 regress-proof against phase k (spec.md §3).
func (s *Store) Live(phaseID int) []TestCase {
	live := make([]TestCase, 0, len(s.cases))
	for _, tc := range s.cases {
		if tc.Phase <= phaseID {
			live = append(live, tc)
		}
	}
	return live
}

// HasLiveCase reports whether at least one test case is live at phaseID,
// used by static validation (spec.md §4.1: "for every phase, at least one
// test case with phase <= phase.id exists").
func (s *Store) HasLiveCase(phaseID int) bool {
	for _, tc := range s.cases {
		if tc.Phase <= phaseID {
			return true
		}
	}
	return false
}
