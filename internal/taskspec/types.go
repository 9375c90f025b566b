// Package taskspec defines the on-disk task descriptor for a hidden-requirement
// discovery task and the validation rules the Task Loader enforces before a
// Runner is allowed to start.
package taskspec

import (
	"fmt"
	"time"
)

// Difficulty classifies how hard a task is expected to be for an agent.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

func (d Difficulty) valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Interface is the advisory, agent-facing description of the function the
// task wants implemented. The loader does not parse Signature; it is opaque
// text handed to the agent verbatim.
type Interface struct {
	FunctionName   string   `yaml:"function_name"`
	Signature      string   `yaml:"signature"`
	AllowedImports []string `yaml:"allowed_imports,omitempty"`
}

func (i *Interface) Validate() error {
	if i.FunctionName == "" {
		return fmt.Errorf("interface.function_name is required")
	}
	return nil
}

// Execution holds per-call sandbox limits.
type Execution struct {
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

func (e *Execution) Validate() error {
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("execution.timeout_seconds must be positive, got %v", e.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the configured timeout as a time.Duration.
func (e *Execution) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds * float64(time.Second))
}

// Limits bounds how many attempts an agent may spend on a task.
type Limits struct {
	MaxAttemptsPerPhase int `yaml:"max_attempts_per_phase"`
	MaxTotalAttempts    int `yaml:"max_total_attempts"`
}

func (l *Limits) Validate() error {
	if l.MaxAttemptsPerPhase <= 0 {
		return fmt.Errorf("limits.max_attempts_per_phase must be positive, got %d", l.MaxAttemptsPerPhase)
	}
	if l.MaxTotalAttempts <= 0 {
		return fmt.Errorf("limits.max_total_attempts must be positive, got %d", l.MaxTotalAttempts)
	}
	if l.MaxTotalAttempts < l.MaxAttemptsPerPhase {
		return fmt.Errorf("limits.max_total_attempts (%d) must be >= limits.max_attempts_per_phase (%d)",
			l.MaxTotalAttempts, l.MaxAttemptsPerPhase)
	}
	return nil
}

// Rule is a named predicate implemented by an evaluator's check_<rule.id>
// method (built-in archetype or out-of-process plugin).
type Rule struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Scopes      []string `yaml:"scopes"`
}

func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule.id is required")
	}
	if len(r.Scopes) == 0 {
		return fmt.Errorf("rule %q: scopes must not be empty", r.ID)
	}
	return nil
}

// Phase is a contiguous segment of a task with a fixed rule set.
type Phase struct {
	ID          int    `yaml:"id"`
	Description string `yaml:"description"`
	Rules       []Rule `yaml:"rules"`
}

func (p *Phase) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("phase %d: rule set must not be empty", p.ID)
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, rule := range p.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("phase %d: %w", p.ID, err)
		}
		if seen[rule.ID] {
			return fmt.Errorf("phase %d: duplicate rule id %q", p.ID, rule.ID)
		}
		seen[rule.ID] = true
	}
	return nil
}

// RuleIDs returns the ids of every rule active in this phase, in descriptor
// order.
func (p *Phase) RuleIDs() []string {
	ids := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		ids[i] = r.ID
	}
	return ids
}

// TaskConfig is the immutable descriptor of a task, parsed from task.yaml.
type TaskConfig struct {
	TaskID     string     `yaml:"task_id"`
	Name       string     `yaml:"name"`
	Difficulty Difficulty `yaml:"difficulty"`
	Interface  Interface  `yaml:"interface"`
	Execution  Execution  `yaml:"execution"`
	Phases     []Phase    `yaml:"phases"`
	Limits     Limits     `yaml:"limits"`
}

// Validate checks every invariant spec.md §4.1 requires the loader to reject
// on. It aggregates every problem it finds rather than stopping at the
// first, so callers (notably the `validate` CLI command) can report
// everything wrong with a task in one pass.
func (t *TaskConfig) Validate() error {
	var errs []error

	if t.TaskID == "" {
		errs = append(errs, fmt.Errorf("task_id is required"))
	}
	if t.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if !t.Difficulty.valid() {
		errs = append(errs, fmt.Errorf("difficulty %q is not one of easy|medium|hard|expert", t.Difficulty))
	}
	if err := t.Interface.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Execution.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Limits.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(t.Phases) == 0 {
		errs = append(errs, fmt.Errorf("at least one phase is required"))
	} else {
		for idx, phase := range t.Phases {
			if phase.ID != idx {
				errs = append(errs, fmt.Errorf("phases must form a contiguous 0..N-1 sequence: phase at index %d has id %d", idx, phase.ID))
			}
			if err := phase.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errs: errs}
	}
	return nil
}

// Phase looks up a phase by id. It returns (nil, false) if out of range.
func (t *TaskConfig) Phase(id int) (*Phase, bool) {
	if id < 0 || id >= len(t.Phases) {
		return nil, false
	}
	return &t.Phases[id], true
}

// LastPhaseID returns the id of the final phase.
func (t *TaskConfig) LastPhaseID() int {
	return len(t.Phases) - 1
}

// AllowedImportSet returns the task's allowed-imports list as a set.
func (t *TaskConfig) AllowedImportSet() map[string]bool {
	set := make(map[string]bool, len(t.Interface.AllowedImports))
	for _, imp := range t.Interface.AllowedImports {
		set[imp] = true
	}
	return set
}

// ValidationError aggregates every structural problem found while validating
// a task descriptor.
type ValidationError struct {
	Errs []error
}

func (e *ValidationError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e.Errs))
	for _, err := range e.Errs {
		msg += "\n  - " + err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() []error {
	return e.Errs
}
