// Package workspace implements the Workspace Broker of spec.md §4.5: the
// agent-facing file protocol of §6.1 (problem/task/phase/solution/feedback/
// report), atomic writes, and content-change detection for the interactive
// `solution` watch loop.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/redush-com/SaotriBench/internal/feedback"
	"github.com/redush-com/SaotriBench/internal/taskspec"
)

const (
	fileProblem  = "problem"
	fileTask     = "task"
	filePhase    = "phase"
	fileSolution = "solution"
	fileFeedback = "feedback"
	fileReport   = "report"
)

// ErrQuitRequested is returned by WaitForSolution when the caller's quit
// channel fires before a solution change is observed.
var ErrQuitRequested = errors.New("workspace: quit requested")

// InterfaceView is the agent-visible subset of TaskConfig.Interface.
type InterfaceView struct {
	FunctionName   string   `json:"function_name"`
	Signature      string   `json:"signature"`
	AllowedImports []string `json:"allowed_imports"`
}

// ExecutionView is the agent-visible subset of TaskConfig.Execution.
type ExecutionView struct {
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// LimitsView is the agent-visible subset of TaskConfig.Limits.
type LimitsView struct {
	MaxAttemptsPerPhase int `json:"max_attempts_per_phase"`
	MaxTotalAttempts    int `json:"max_total_attempts"`
}

// TaskView is the `task` file's wire shape (spec.md §6.1).
type TaskView struct {
	TaskID      string        `json:"task_id"`
	Name        string        `json:"name"`
	Difficulty  string        `json:"difficulty"`
	Interface   InterfaceView `json:"interface"`
	Execution   ExecutionView `json:"execution"`
	Limits      LimitsView    `json:"limits"`
	TotalPhases int           `json:"total_phases"`
}

// RuleView is a rule as announced to the agent, scopes already obfuscated.
type RuleView struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Scopes      []string `json:"scopes"`
}

// PhaseView is the `phase` file's wire shape (spec.md §6.1).
type PhaseView struct {
	PhaseID                    int                 `json:"phase_id"`
	Description                string              `json:"description"`
	Rules                      []RuleView          `json:"rules"`
	ImplicitEvaluation         *feedback.Feedback  `json:"implicit_evaluation,omitempty"`
	AttemptsUsedThisPhase      int                 `json:"attempts_used_this_phase"`
	AttemptsRemainingThisPhase int                 `json:"attempts_remaining_this_phase"`
	TotalAttemptsRemaining     int                 `json:"total_attempts_remaining"`
}

// solutionState is the (size, content-hash) pair spec.md §6.1 keys change
// detection on. mtime is deliberately excluded: a write that re-saves
// byte-identical content must not count as a new attempt.
type solutionState struct {
	size int64
	hash uint64
}

func (s solutionState) equal(o solutionState) bool {
	return s.size == o.size && s.hash == o.hash
}

// Broker realises the workspace file protocol for one task run. It is the
// sole writer of every file but `solution`.
type Broker struct {
	dir string
}

// New creates a Broker rooted at dir, creating dir if absent and seeding an
// empty `solution` file so the watch loop has something to watch from the
// start (spec.md §4.5).
func New(dir string) (*Broker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("workspace: creating workspace dir %s: %w", dir, err)
	}

	b := &Broker{dir: dir}
	solutionPath := b.path(fileSolution)
	if _, err := os.Stat(solutionPath); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(solutionPath, []byte{}); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Broker) path(name string) string {
	return filepath.Join(b.dir, name)
}

// SolutionPath returns the path of the agent-owned `solution` file, for
// callers (tests, or an editor-integration shim) that write to it directly.
func (b *Broker) SolutionPath() string {
	return b.path(fileSolution)
}

// PublishProblem writes the `problem` file once, at task start.
func (b *Broker) PublishProblem(problemMD string) error {
	return writeAtomic(b.path(fileProblem), []byte(problemMD))
}

// PublishTask writes the `task` file once, at task start.
func (b *Broker) PublishTask(cfg *taskspec.TaskConfig) error {
	view := TaskView{
		TaskID:     cfg.TaskID,
		Name:       cfg.Name,
		Difficulty: string(cfg.Difficulty),
		Interface: InterfaceView{
			FunctionName:   cfg.Interface.FunctionName,
			Signature:      cfg.Interface.Signature,
			AllowedImports: cfg.Interface.AllowedImports,
		},
		Execution:   ExecutionView{TimeoutSeconds: cfg.Execution.TimeoutSeconds},
		Limits:      LimitsView{MaxAttemptsPerPhase: cfg.Limits.MaxAttemptsPerPhase, MaxTotalAttempts: cfg.Limits.MaxTotalAttempts},
		TotalPhases: len(cfg.Phases),
	}
	return b.writeJSON(fileTask, view)
}

// PublishPhase writes the `phase` file on entering each phase, with scopes
// obfuscated per spec.md §4.4/§6.1 ("rules[...scopes (post-obfuscation)]").
func (b *Broker) PublishPhase(phase *taskspec.Phase, implicitEval *feedback.Feedback, attemptsUsed, attemptsRemainingPhase, totalAttemptsRemaining int) error {
	rules := make([]RuleView, len(phase.Rules))
	for i, r := range phase.Rules {
		scopes := make([]string, len(r.Scopes))
		for j, s := range r.Scopes {
			scopes[j] = feedback.ObfuscateScope(s)
		}
		rules[i] = RuleView{ID: r.ID, Description: r.Description, Scopes: scopes}
	}

	view := PhaseView{
		PhaseID:                    phase.ID,
		Description:                phase.Description,
		Rules:                      rules,
		ImplicitEvaluation:         implicitEval,
		AttemptsUsedThisPhase:      attemptsUsed,
		AttemptsRemainingThisPhase: attemptsRemainingPhase,
		TotalAttemptsRemaining:     totalAttemptsRemaining,
	}
	return b.writeJSON(filePhase, view)
}

// PublishFeedback writes the `feedback` file after each counted attempt.
func (b *Broker) PublishFeedback(f *feedback.Feedback) error {
	return b.writeJSON(fileFeedback, f)
}

// WriteReport writes the terminal `report` file once, on termination.
func (b *Broker) WriteReport(v any) error {
	return b.writeJSON(fileReport, v)
}

func (b *Broker) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: marshaling %s: %w", name, err)
	}
	return writeAtomic(b.path(name), data)
}

// ReadSolution reads the current `solution` contents once, for `--single`
// mode (spec.md §4.5: "the broker reads the existing solution exactly once").
func (b *Broker) ReadSolution() (string, error) {
	data, err := os.ReadFile(b.path(fileSolution))
	if err != nil {
		return "", fmt.Errorf("workspace: reading solution: %w", err)
	}
	return string(data), nil
}

func (b *Broker) readSolutionState() (solutionState, string, error) {
	path := b.path(fileSolution)
	info, err := os.Stat(path)
	if err != nil {
		return solutionState{}, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return solutionState{}, "", err
	}
	return solutionState{size: info.Size(), hash: xxhash.Sum64(data)}, string(data), nil
}

// PriorSolutionState returns the current (size, hash) pair of `solution`, to
// seed the next WaitForSolution call's baseline.
func (b *Broker) PriorSolutionState() (any, error) {
	state, _, err := b.readSolutionState()
	return state, err
}

// WaitForSolution blocks until `solution`'s content changes from prior
// (content-hash, not just mtime, per spec.md §4.5 — "redundant saves with
// identical contents are not treated as new attempts"), the quit channel
// fires, or ctx is cancelled. It watches the workspace directory with
// fsnotify (some filesystems don't support watching a single file
// directly, the same reasoning behind the teacher's
// pkg/config/provider/file.go) and falls back to polling every
// pollInterval in case the notification is missed or unsupported.
func (b *Broker) WaitForSolution(ctx context.Context, prior any, pollInterval time.Duration, quit <-chan struct{}) (string, any, error) {
	priorState, _ := prior.(solutionState)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if addErr := watcher.Add(b.dir); addErr != nil {
			slog.Warn("workspace: falling back to polling only", "error", addErr)
		}
	} else {
		slog.Warn("workspace: fsnotify unavailable, polling only", "error", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	check := func() (string, any, bool) {
		state, content, err := b.readSolutionState()
		if err != nil {
			return "", nil, false
		}
		if state.equal(priorState) {
			return "", nil, false
		}
		return content, state, true
	}

	for {
		var events <-chan fsnotify.Event
		if watcher != nil {
			events = watcher.Events
		}

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-quit:
			return "", nil, ErrQuitRequested
		case <-ticker.C:
			if content, state, changed := check(); changed {
				return content, state, nil
			}
		case _, ok := <-events:
			if !ok {
				continue
			}
			if content, state, changed := check(); changed {
				return content, state, nil
			}
		}
	}
}
