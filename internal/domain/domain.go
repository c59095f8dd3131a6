// Package domain holds the core value types shared across the pipeline:
// gate results, per-iteration metrics, and whole-run metrics.
package domain

import (
	"math"
	"time"
)

// PassMarker is the literal string an Agent C verdict must contain for
// triangular verification to pass. The check is a plain substring test.
const PassMarker = "TRIANGULAR_PASS"

// GateStatus classifies the terminal outcome of a single gate.
type GateStatus string

const (
	StatusPass    GateStatus = "pass"
	StatusFail    GateStatus = "fail"
	StatusSkipped GateStatus = "skipped"
	StatusBlocked GateStatus = "blocked"
)

// IterationOutcome classifies how a completed iteration attempt ended.
type IterationOutcome string

const (
	OutcomePass       IterationOutcome = "pass"
	OutcomeGateFail   IterationOutcome = "gate_fail"
	OutcomeVerifyFail IterationOutcome = "verify_fail"
)

// GateFunc is an in-process gate: it returns whether the check passed
// and a human-readable message. A GateFunc may return an error instead
// of a verdict; the executor converts that into a failed gate.
type GateFunc func() (bool, string, error)

// GateResult records one gate's outcome within an iteration. Immutable
// after creation; owned by the iteration that produced it.
type GateResult struct {
	Name     string        `json:"name"`
	Status   GateStatus    `json:"status"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"-"`

	DurationS float64 `json:"duration_s"`
}

// NewGateResult builds a GateResult with both duration representations set.
func NewGateResult(name string, status GateStatus, output string, d time.Duration) GateResult {
	return GateResult{
		Name:      name,
		Status:    status,
		Output:    output,
		Duration:  d,
		DurationS: RoundSeconds(d),
	}
}

// IterationMetrics accumulates the record of one iteration attempt.
// Outcome is set only when the iteration reaches a terminal phase;
// iterations aborted by shutdown never get one.
type IterationMetrics struct {
	Iteration          int              `json:"iteration"`
	DurationS          float64          `json:"duration_s"`
	Phase1Done         bool             `json:"phase1_done"`
	GateResults        []GateResult     `json:"gate_results"`
	VerificationStatus GateStatus       `json:"verification_result"`
	Outcome            IterationOutcome `json:"outcome"`
}

// NewIterationMetrics starts the record for iteration i.
func NewIterationMetrics(i int) *IterationMetrics {
	return &IterationMetrics{
		Iteration:          i,
		GateResults:        []GateResult{},
		VerificationStatus: StatusSkipped,
	}
}

// GateStatusFor returns the recorded status for a named gate, or
// StatusSkipped if the gate did not run this iteration.
func (m *IterationMetrics) GateStatusFor(name string) GateStatus {
	for _, g := range m.GateResults {
		if g.Name == name {
			return g.Status
		}
	}
	return StatusSkipped
}

// PipelineMetrics is the whole-run record: one instance per run,
// finalized exactly once on every exit path.
type PipelineMetrics struct {
	StartedAt       string              `json:"started_at"`
	EndedAt         string              `json:"ended_at"`
	TotalDurationS  float64             `json:"total_duration_s"`
	TotalIterations int                 `json:"total_iterations"`
	Converged       bool                `json:"converged"`
	Iterations      []*IterationMetrics `json:"iterations"`
}

func RoundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
