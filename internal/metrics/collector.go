// Package metrics implements the Metrics Collector of spec.md §4.7: a
// Prometheus registry mirroring the teacher's pkg/observability/metrics.go
// Namespace/Subsystem convention for the live/exported view, plus an
// in-memory Snapshot fed to the final RunReport so the report is a
// self-contained JSON artifact with no Prometheus scrape dependency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PhaseStatus is the per-phase outcome recorded at Finish.
type PhaseStatus string

const (
	PhaseStatusValid  PhaseStatus = "valid"
	PhaseStatusFailed PhaseStatus = "failed"
	PhaseStatusError  PhaseStatus = "error"
	PhaseStatusAbort  PhaseStatus = "aborted"
)

// PhaseSnapshot is one phase's tally, as embedded in a RunReport.
type PhaseSnapshot struct {
	PhaseID         int
	Status          PhaseStatus
	Attempts        int
	FinalCoverage   float64
	DurationSeconds float64
}

// Collector tracks per-phase attempts, coverage, and duration, exposing both
// a live Prometheus registry and an in-memory snapshot for report writing.
type Collector struct {
	taskID string

	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	coverageGauge   *prometheus.GaugeVec
	phaseDuration   *prometheus.HistogramVec
	callDuration    *prometheus.HistogramVec
	sandboxFailures *prometheus.CounterVec

	phases      []*PhaseSnapshot
	phaseByID   map[int]*PhaseSnapshot
	phaseStart  map[int]time.Time
}

// New creates a Collector and registers its metrics on a fresh registry.
func New(taskID string) *Collector {
	c := &Collector{
		taskID:     taskID,
		registry:   prometheus.NewRegistry(),
		phaseByID:  make(map[int]*PhaseSnapshot),
		phaseStart: make(map[int]time.Time),
	}

	c.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saotribench",
			Subsystem: "run",
			Name:      "attempts_total",
			Help:      "Total counted attempts per task phase.",
		},
		[]string{"task_id", "phase_id"},
	)
	c.coverageGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "saotribench",
			Subsystem: "run",
			Name:      "phase_coverage",
			Help:      "Coverage of the most recent counted attempt in a phase.",
		},
		[]string{"task_id", "phase_id"},
	)
	c.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saotribench",
			Subsystem: "run",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of a phase from announcement to exit.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"task_id", "phase_id", "status"},
	)
	c.callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saotribench",
			Subsystem: "sandbox",
			Name:      "call_duration_seconds",
			Help:      "Duration of individual sandbox calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"task_id"},
	)
	c.sandboxFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saotribench",
			Subsystem: "sandbox",
			Name:      "failures_total",
			Help:      "Sandbox load/call failures by error type.",
		},
		[]string{"task_id", "error_type"},
	)

	c.registry.MustRegister(c.attemptsTotal, c.coverageGauge, c.phaseDuration, c.callDuration, c.sandboxFailures)
	return c
}

// Registry returns the live Prometheus registry, for optional HTTP exposition.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartPhase records the wall-clock start of a phase.
func (c *Collector) StartPhase(phaseID int) {
	c.phaseStart[phaseID] = time.Now()
}

// RecordAttempt records one counted attempt's coverage for phaseID.
func (c *Collector) RecordAttempt(phaseID int, coverage float64) {
	label := prometheus.Labels{"task_id": c.taskID, "phase_id": strconv.Itoa(phaseID)}
	c.attemptsTotal.With(label).Inc()
	c.coverageGauge.With(label).Set(coverage)

	snap := c.snapshotFor(phaseID)
	snap.Attempts++
	snap.FinalCoverage = coverage
}

// RecordCallDuration records one sandbox call's wall-clock duration.
func (c *Collector) RecordCallDuration(d time.Duration) {
	c.callDuration.With(prometheus.Labels{"task_id": c.taskID}).Observe(d.Seconds())
}

// RecordSandboxFailure increments the failure counter for errType.
func (c *Collector) RecordSandboxFailure(errType string) {
	c.sandboxFailures.With(prometheus.Labels{"task_id": c.taskID, "error_type": errType}).Inc()
}

// FinishPhase closes out phaseID with its terminal status and emits the
// phase duration observation.
func (c *Collector) FinishPhase(phaseID int, status PhaseStatus) {
	snap := c.snapshotFor(phaseID)
	snap.Status = status

	start, ok := c.phaseStart[phaseID]
	duration := 0.0
	if ok {
		duration = time.Since(start).Seconds()
	}
	snap.DurationSeconds = duration

	c.phaseDuration.With(prometheus.Labels{
		"task_id": c.taskID, "phase_id": strconv.Itoa(phaseID), "status": string(status),
	}).Observe(duration)
}

// DurationSeconds returns phaseID's recorded duration after FinishPhase, for
// a caller (the Runner) that needs it outside of a full Snapshot.
func (c *Collector) DurationSeconds(phaseID int) float64 {
	return c.snapshotFor(phaseID).DurationSeconds
}

// Snapshot returns the accumulated per-phase tallies, in phase order, for
// serialization into a RunReport.
func (c *Collector) Snapshot() []PhaseSnapshot {
	out := make([]PhaseSnapshot, len(c.phases))
	for i, p := range c.phases {
		out[i] = *p
	}
	return out
}

func (c *Collector) snapshotFor(phaseID int) *PhaseSnapshot {
	if snap, ok := c.phaseByID[phaseID]; ok {
		return snap
	}
	snap := &PhaseSnapshot{PhaseID: phaseID}
	c.phaseByID[phaseID] = snap
	c.phases = append(c.phases, snap)
	return snap
}
