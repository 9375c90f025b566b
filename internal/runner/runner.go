package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redush-com/SaotriBench/internal/evaluator"
	"github.com/redush-com/SaotriBench/internal/feedback"
	"github.com/redush-com/SaotriBench/internal/metrics"
	"github.com/redush-com/SaotriBench/internal/report"
	"github.com/redush-com/SaotriBench/internal/sandbox"
	"github.com/redush-com/SaotriBench/internal/taskspec"
	"github.com/redush-com/SaotriBench/internal/testcase"
	"github.com/redush-com/SaotriBench/internal/workspace"
)

// Runner drives one task run end to end: publishing the workspace files,
// waiting for or reading solutions, evaluating them, and terminating per
// spec.md §4.6's priority list.
type Runner struct {
	task      *taskspec.Task
	store     *testcase.Store
	sb        *sandbox.Sandbox
	ev        *evaluator.Evaluator
	broker    *workspace.Broker
	collector *metrics.Collector
	agentID   string

	pollInterval time.Duration
	single       bool
	quit         <-chan struct{}

	state         *runState
	priorFeedback *feedback.Feedback
}

// New creates a Runner for one task run.
func New(task *taskspec.Task, store *testcase.Store, sb *sandbox.Sandbox, ev *evaluator.Evaluator, broker *workspace.Broker, collector *metrics.Collector, agentID string, pollInterval time.Duration, single bool, quit <-chan struct{}) *Runner {
	return &Runner{
		task:         task,
		store:        store,
		sb:           sb,
		ev:           ev,
		broker:       broker,
		collector:    collector,
		agentID:      agentID,
		pollInterval: pollInterval,
		single:       single,
		quit:         quit,
		state:        newRunState(),
	}
}

// Run executes the task to termination and returns the final RunReport.
func (r *Runner) Run(ctx context.Context) (*report.RunReport, error) {
	started := time.Now()
	cfg := &r.task.Config

	if err := r.broker.PublishProblem(r.task.ProblemMD); err != nil {
		return nil, fmt.Errorf("runner: publishing problem: %w", err)
	}
	if err := r.broker.PublishTask(cfg); err != nil {
		return nil, fmt.Errorf("runner: publishing task: %w", err)
	}

	var outcome Outcome
	var phases []report.PhaseReport

	for {
		phase, ok := cfg.Phase(r.state.phaseID)
		if !ok {
			outcome = OutcomeCompleted
			break
		}
		r.state.setState(StateBeforePhase)
		r.collector.StartPhase(phase.ID)
		slog.Info("entering phase", "task_id", cfg.TaskID, "phase_id", phase.ID)

		implicit := r.maybeImplicitEvaluation(ctx, phase)

		attemptsUsed := r.state.attemptsUsed(phase.ID)
		if err := r.broker.PublishPhase(phase,
			implicit,
			attemptsUsed,
			cfg.Limits.MaxAttemptsPerPhase-attemptsUsed,
			cfg.Limits.MaxTotalAttempts-r.state.totalAttempts,
		); err != nil {
			return nil, fmt.Errorf("runner: publishing phase %d: %w", phase.ID, err)
		}

		if implicit != nil && implicit.Status == feedback.StatusValid {
			slog.Info("implicit evaluation already valid, auto-advancing", "phase_id", phase.ID)
			r.collector.FinishPhase(phase.ID, metrics.PhaseStatusValid)
			phases = append(phases, report.PhaseReport{
				PhaseID: phase.ID, Status: metrics.PhaseStatusValid,
				Attempts: 0, FinalCoverage: implicit.Summary.Coverage,
				DurationSeconds:    r.collector.DurationSeconds(phase.ID),
				ImplicitEvaluation: implicit,
			})
			r.priorFeedback = implicit
			if phase.ID == cfg.LastPhaseID() {
				outcome = OutcomeCompleted
				break
			}
			r.state.phaseID++
			continue
		}

		phaseOutcome, phaseReport, terminate := r.runPhaseAttempts(ctx, phase, cfg)
		phases = append(phases, phaseReport)
		if terminate {
			outcome = phaseOutcome
			break
		}
		r.state.phaseID++
	}

	rr := &report.RunReport{
		TaskID:    cfg.TaskID,
		AgentID:   r.agentID,
		Timestamp: started.UTC().Format(time.RFC3339),
		Phases:    phases,
		Overall: report.Overall{
			Status:               report.FinalStatus(outcome),
			TotalAttempts:        r.state.totalAttempts,
			PhasesCompleted:      phasesCompleted(phases, outcome),
			TotalDurationSeconds: time.Since(started).Seconds(),
		},
	}
	if err := r.broker.WriteReport(rr); err != nil {
		return nil, fmt.Errorf("runner: writing report: %w", err)
	}
	r.state.setState(StateDone)
	return rr, nil
}

// maybeImplicitEvaluation implements spec.md §4.6's "implicit phase-
// transition evaluation": on entering phase k>0 with a prior solution, the
// current solution is re-evaluated against phase k's rules without
// consuming any attempt budget.
func (r *Runner) maybeImplicitEvaluation(ctx context.Context, phase *taskspec.Phase) *feedback.Feedback {
	if phase.ID == 0 || !r.state.haveSolution {
		return nil
	}
	f, _ := r.evaluateSolution(ctx, phase, r.state.lastSolution, 0, r.priorFeedback)
	return f
}

// runPhaseAttempts runs the AwaitingAttempt/Evaluating loop for one phase
// until the phase is satisfied, exhausted, the total budget is exhausted,
// or the operator quits. It returns whether the run should terminate and,
// if so, with what outcome.
func (r *Runner) runPhaseAttempts(ctx context.Context, phase *taskspec.Phase, cfg *taskspec.TaskConfig) (Outcome, report.PhaseReport, bool) {
	rep := report.PhaseReport{PhaseID: phase.ID}

	for {
		r.state.setState(StateAwaitingAttempt)
		source, quitOutcome, ok := r.nextSolution(ctx)
		if !ok {
			r.collector.FinishPhase(phase.ID, metrics.PhaseStatusAbort)
			rep.Status = metrics.PhaseStatusAbort
			rep.DurationSeconds = r.collector.DurationSeconds(phase.ID)
			return quitOutcome, rep, true
		}

		r.state.setState(StateEvaluating)
		attemptID := r.state.nextAttemptID()
		f, execErr := r.evaluateSolution(ctx, phase, source, attemptID, r.priorFeedback)
		r.state.lastSolution = source
		r.state.haveSolution = true
		r.priorFeedback = f

		perPhaseCount, totalCount := r.state.recordCountedAttempt(phase.ID)
		r.collector.RecordAttempt(phase.ID, f.Summary.Coverage)
		if execErr != nil {
			r.collector.RecordSandboxFailure(string(execErr.Type))
		}
		if err := r.broker.PublishFeedback(f); err != nil {
			slog.Error("publishing feedback failed", "error", err)
		}

		rep.Attempts = perPhaseCount
		rep.FinalCoverage = f.Summary.Coverage

		// Termination priority, spec.md §4.6.
		if f.Status == feedback.StatusValid && phase.ID == cfg.LastPhaseID() {
			r.collector.FinishPhase(phase.ID, metrics.PhaseStatusValid)
			rep.Status = metrics.PhaseStatusValid
			rep.DurationSeconds = r.collector.DurationSeconds(phase.ID)
			return OutcomeCompleted, rep, true
		}
		if f.Status == feedback.StatusValid {
			r.collector.FinishPhase(phase.ID, metrics.PhaseStatusValid)
			rep.Status = metrics.PhaseStatusValid
			rep.DurationSeconds = r.collector.DurationSeconds(phase.ID)
			if r.single {
				return OutcomeCompleted, rep, true
			}
			return "", rep, false
		}
		if r.single {
			status := metrics.PhaseStatusFailed
			if execErr != nil {
				status = metrics.PhaseStatusError
			}
			r.collector.FinishPhase(phase.ID, status)
			rep.Status = status
			rep.DurationSeconds = r.collector.DurationSeconds(phase.ID)
			outcome := OutcomeFailed
			if execErr != nil {
				outcome = OutcomeError
			}
			return outcome, rep, true
		}
		if perPhaseCount >= cfg.Limits.MaxAttemptsPerPhase {
			r.collector.FinishPhase(phase.ID, metrics.PhaseStatusFailed)
			rep.Status = metrics.PhaseStatusFailed
			rep.DurationSeconds = r.collector.DurationSeconds(phase.ID)
			return OutcomeFailed, rep, true
		}
		if totalCount >= cfg.Limits.MaxTotalAttempts {
			r.collector.FinishPhase(phase.ID, metrics.PhaseStatusFailed)
			rep.Status = metrics.PhaseStatusFailed
			rep.DurationSeconds = r.collector.DurationSeconds(phase.ID)
			return OutcomeFailed, rep, true
		}
		// Otherwise: continue waiting for the next attempt.
	}
}

// nextSolution reads or waits for the next solution submission, per mode.
func (r *Runner) nextSolution(ctx context.Context) (string, Outcome, bool) {
	if r.single {
		source, err := r.broker.ReadSolution()
		if err != nil {
			return "", OutcomeError, false
		}
		return source, "", true
	}

	prior, err := r.broker.PriorSolutionState()
	if err != nil {
		return "", OutcomeError, false
	}
	source, _, err := r.broker.WaitForSolution(ctx, prior, r.pollInterval, r.quit)
	if err != nil {
		if errors.Is(err, workspace.ErrQuitRequested) {
			r.state.setState(StateQuitByOperator)
			return "", OutcomeAborted, false
		}
		return "", OutcomeError, false
	}
	return source, "", true
}

// evaluateSolution loads source into the sandbox and evaluates it against
// phase, building a Feedback record. attemptID is 0 for an uncounted
// implicit evaluation (Feedback.AttemptID's omitempty tag drops it from the
// wire shape, per Testable Property 1: "implicit-evaluation feedbacks do
// not carry an attempt id").
func (r *Runner) evaluateSolution(ctx context.Context, phase *taskspec.Phase, source string, attemptID int, prior *feedback.Feedback) (*feedback.Feedback, *evaluator.ExecutionError) {
	cfg := &r.task.Config
	timeout := cfg.Execution.Timeout()
	liveCount := len(r.store.Live(phase.ID))

	callable, err := r.sb.LoadCallable(ctx, source, cfg.Interface.FunctionName, cfg.AllowedImportSet(), timeout)
	if err != nil {
		sbErr, _ := err.(*sandbox.Error)
		execErr := &evaluator.ExecutionError{Type: sandbox.ErrorRuntime, Message: err.Error()}
		if sbErr != nil {
			execErr.Type = sbErr.Type
			execErr.Message = sbErr.Message
		}
		return feedback.Build(phase, attemptID, nil, 0, liveCount, prior, execErr), execErr
	}
	defer callable.Close()

	violations, coverage, execErr := r.ev.Evaluate(ctx, callable, r.store, phase, timeout)
	return feedback.Build(phase, attemptID, violations, coverage, liveCount, prior, execErr), execErr
}

func phasesCompleted(phases []report.PhaseReport, outcome Outcome) int {
	if outcome == OutcomeCompleted {
		return len(phases)
	}
	if len(phases) == 0 {
		return 0
	}
	return len(phases) - 1
}
