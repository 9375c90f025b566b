package runner

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redush-com/SaotriBench/internal/evaluator"
	"github.com/redush-com/SaotriBench/internal/metrics"
	"github.com/redush-com/SaotriBench/internal/report"
	"github.com/redush-com/SaotriBench/internal/sandbox"
	"github.com/redush-com/SaotriBench/internal/taskspec"
	"github.com/redush-com/SaotriBench/internal/testcase"
	"github.com/redush-com/SaotriBench/internal/workspace"
)

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func twoPhaseConfig() *taskspec.TaskConfig {
	return &taskspec.TaskConfig{
		TaskID:     "fizzbuzz",
		Name:       "FizzBuzz",
		Difficulty: taskspec.DifficultyEasy,
		Interface:  taskspec.Interface{FunctionName: "fizzbuzz", Signature: "def fizzbuzz(n: int) -> str"},
		Execution:  taskspec.Execution{TimeoutSeconds: 2},
		Limits:     taskspec.Limits{MaxAttemptsPerPhase: 3, MaxTotalAttempts: 6},
		Phases: []taskspec.Phase{
			{ID: 0, Description: "basic fizzbuzz", Rules: []taskspec.Rule{
				{ID: "correct_output", Description: "matches expected output", Scopes: []string{"divisible_by_3", "divisible_by_5", "plain_number"}},
			}},
			{ID: 1, Description: "no mutation of input", Rules: []taskspec.Rule{
				{ID: "correct_output", Description: "matches expected output", Scopes: []string{"divisible_by_3", "divisible_by_5", "plain_number"}},
				{ID: "no_mutation", Description: "does not mutate its argument", Scopes: []string{"direct", "nested"}},
			}},
		},
	}
}

func twoPhaseStore() *testcase.Store {
	return testcase.New([]testcase.TestCase{
		{Input: float64(3), Expected: "Fizz", Phase: 0, Tags: []string{"divisible_by_3"}},
		{Input: float64(5), Expected: "Buzz", Phase: 0, Tags: []string{"divisible_by_5"}},
		{Input: float64(4), Expected: "4", Phase: 0, Tags: []string{"plain_number"}},
	})
}

func newRunner(t *testing.T, cfg *taskspec.TaskConfig, store *testcase.Store, single bool, quit <-chan struct{}) (*Runner, *workspace.Broker) {
	t.Helper()
	broker, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	task := &taskspec.Task{Config: *cfg, ProblemMD: "# " + cfg.Name}
	sb := sandbox.New(sandbox.Config{})
	ev := evaluator.New(evaluator.NewRuleResolver(nil))
	collector := metrics.New(cfg.TaskID)

	r := New(task, store, sb, ev, broker, collector, "agent-test", 20*time.Millisecond, single, quit)
	return r, broker
}

func TestRun_S1_StraightforwardProgressionAcrossPhases(t *testing.T) {
	requirePython3(t)
	cfg := twoPhaseConfig()
	store := twoPhaseStore()
	r, broker := newRunner(t, cfg, store, false, nil)

	goodSrc := "def fizzbuzz(n):\n    if n % 3 == 0:\n        return \"Fizz\"\n    if n % 5 == 0:\n        return \"Buzz\"\n    return str(n)\n"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, writeFile(broker, goodSrc))
	}()

	rr, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.FinalCompleted, rr.Overall.Status)
	assert.Equal(t, 1, rr.Overall.TotalAttempts)
	assert.Equal(t, 2, rr.Overall.PhasesCompleted)
}

func TestRun_S6_ImplicitEvaluationAutoAdvances(t *testing.T) {
	requirePython3(t)
	cfg := twoPhaseConfig()
	store := twoPhaseStore()
	r, broker := newRunner(t, cfg, store, false, nil)

	// A solution that already satisfies both phases (no mutation, correct
	// output) should clear phase 1 via the implicit evaluation alone, with
	// no second submission required.
	goodSrc := "def fizzbuzz(n):\n    if n % 3 == 0:\n        return \"Fizz\"\n    if n % 5 == 0:\n        return \"Buzz\"\n    return str(n)\n"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, writeFile(broker, goodSrc))
	}()

	rr, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.FinalCompleted, rr.Overall.Status)
	assert.Equal(t, 1, rr.Overall.TotalAttempts, "phase 1 must clear via implicit evaluation, consuming no attempt")
	require.Len(t, rr.Phases, 2)
	require.NotNil(t, rr.Phases[1].ImplicitEvaluation)
	assert.Equal(t, 0, rr.Phases[1].Attempts)
}

func TestRun_PhaseExhausted_AfterMaxAttemptsPerPhase(t *testing.T) {
	requirePython3(t)
	cfg := twoPhaseConfig()
	cfg.Limits = taskspec.Limits{MaxAttemptsPerPhase: 2, MaxTotalAttempts: 10}
	store := twoPhaseStore()
	r, broker := newRunner(t, cfg, store, false, nil)

	badSrc := "def fizzbuzz(n):\n    return \"wrong\"\n"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, writeFile(broker, badSrc+" "))
		time.Sleep(60 * time.Millisecond)
		require.NoError(t, writeFile(broker, badSrc+"  "))
	}()

	rr, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.FinalFailed, rr.Overall.Status)
	assert.Equal(t, 2, rr.Overall.TotalAttempts)
	assert.Equal(t, metrics.PhaseStatusFailed, rr.Phases[0].Status)
}

func TestRun_SingleMode_TerminatesAfterOneAttemptRegardlessOfOutcome(t *testing.T) {
	requirePython3(t)
	cfg := twoPhaseConfig()
	store := twoPhaseStore()
	r, broker := newRunner(t, cfg, store, true, nil)

	badSrc := "def fizzbuzz(n):\n    return \"wrong\"\n"
	require.NoError(t, writeFile(broker, badSrc))

	rr, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Overall.TotalAttempts)
	assert.Equal(t, report.FinalFailed, rr.Overall.Status)
}

func TestRun_QuitByOperator_AbortsRun(t *testing.T) {
	requirePython3(t)
	cfg := twoPhaseConfig()
	store := twoPhaseStore()
	quit := make(chan struct{})
	r, _ := newRunner(t, cfg, store, false, quit)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(quit)
	}()

	rr, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.FinalAborted, rr.Overall.Status)
	assert.Equal(t, 0, rr.Overall.TotalAttempts)
}

// writeFile writes directly to the broker's workspace solution file, the
// way an interactive agent's editor save would.
func writeFile(b *workspace.Broker, content string) error {
	return os.WriteFile(b.SolutionPath(), []byte(content), 0644)
}
