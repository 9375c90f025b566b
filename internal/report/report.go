// Package report defines the terminal RunReport artifact (spec.md §3) and
// the CLI exit-code table derived from its overall status (spec.md §6.3).
package report

import (
	"github.com/redush-com/SaotriBench/internal/feedback"
	"github.com/redush-com/SaotriBench/internal/metrics"
)

// FinalStatus is the terminal outcome of a run.
type FinalStatus string

const (
	FinalCompleted FinalStatus = "completed"
	FinalFailed    FinalStatus = "failed"
	FinalError     FinalStatus = "error"
	FinalTimeout   FinalStatus = "timeout"
	FinalAborted   FinalStatus = "aborted"
)

// ExitCodes maps a FinalStatus to the process exit code `run` returns,
// per spec.md §6.3 ("distinct codes per class").
var ExitCodes = map[FinalStatus]int{
	FinalCompleted: 0,
	FinalFailed:    1,
	FinalError:     2,
	FinalTimeout:   3,
	FinalAborted:   4,
}

// PhaseReport is one phase's entry in a RunReport.
type PhaseReport struct {
	PhaseID            int                 `json:"phase_id"`
	Status             metrics.PhaseStatus `json:"status"`
	Attempts           int                 `json:"attempts"`
	FinalCoverage      float64             `json:"final_coverage"`
	DurationSeconds    float64             `json:"duration_seconds"`
	ImplicitEvaluation *feedback.Feedback  `json:"implicit_evaluation,omitempty"`
}

// Overall is the aggregate summary of a run.
type Overall struct {
	Status              FinalStatus `json:"status"`
	TotalAttempts       int         `json:"total_attempts"`
	PhasesCompleted     int         `json:"phases_completed"`
	TotalDurationSeconds float64    `json:"total_duration_seconds"`
}

// RunReport is the self-contained terminal artifact written once, on
// termination, to the workspace `report` file (spec.md §6.1).
type RunReport struct {
	TaskID    string        `json:"task_id"`
	AgentID   string        `json:"agent_id"`
	Timestamp string        `json:"timestamp"`
	Phases    []PhaseReport `json:"phases"`
	Overall   Overall       `json:"overall"`
}
