package gates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/devloop/internal/domain"
	"github.com/lucasnoah/devloop/internal/logging"
)

// outputLimit bounds each gate's stored output so metrics artifacts
// stay small. Combined failure text keeps the full output.
const outputLimit = 500

// Verdict is the outcome of executing a gate set.
type Verdict struct {
	AllPassed bool
	// FailureText is the feedback fed into the next corrective prompt.
	// Sequential runs carry exactly the first failure; parallel runs
	// concatenate every failure, double-newline separated.
	FailureText string
	Results     []domain.GateResult
}

// Executor runs a set of gates under one of two disciplines.
type Executor struct {
	log *logging.Logger
}

// NewExecutor creates an Executor logging through log.
func NewExecutor(log *logging.Logger) *Executor {
	return &Executor{log: log}
}

// Execute runs all gates. With parallel set, every gate is attempted
// concurrently and all failures are surfaced; otherwise gates run in
// declaration order and execution stops at the first failure.
func (e *Executor) Execute(ctx context.Context, all []Gate, parallel bool) Verdict {
	if len(all) == 0 {
		e.log.Info("No quality gates configured — skipping")
		return Verdict{AllPassed: true, Results: []domain.GateResult{}}
	}
	if parallel {
		return e.runParallel(ctx, all)
	}
	return e.runSequential(ctx, all)
}

// runSequential executes gates in declaration order, short-circuiting
// at the first failure.
func (e *Executor) runSequential(ctx context.Context, all []Gate) Verdict {
	v := Verdict{AllPassed: true, Results: []domain.GateResult{}}

	for _, g := range all {
		if g.Detail() != "" {
			e.log.Info(fmt.Sprintf("Running %s: %s", g.Name(), g.Detail()))
		} else {
			e.log.Info(fmt.Sprintf("Running %s", g.Name()))
		}

		status, output, dur := timedExecute(ctx, g)
		v.Results = append(v.Results, domain.NewGateResult(g.Name(), status, truncate(output), dur))

		if status == domain.StatusPass {
			e.log.Info(fmt.Sprintf("%s: PASS", g.Name()))
			continue
		}

		e.log.Info(fmt.Sprintf("%s: FAIL", g.Name()))
		if g.Detail() != "" {
			v.FailureText = fmt.Sprintf("%s (%s) FAILED:\n%s", g.Name(), g.Detail(), output)
		} else {
			v.FailureText = fmt.Sprintf("%s FAILED:\n%s", g.Name(), output)
		}
		v.AllPassed = false
		break
	}
	return v
}

// runParallel fans every gate out to a worker pool sized to the gate
// count and joins before computing the combined verdict, so all
// simultaneous failures surface together.
func (e *Executor) runParallel(ctx context.Context, all []Gate) Verdict {
	e.log.Info(fmt.Sprintf("Running %d gates in parallel", len(all)))

	type outcome struct {
		status domain.GateStatus
		output string
		dur    time.Duration
	}
	outcomes := make([]outcome, len(all))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(all))
	for i, gate := range all {
		i, gate := i, gate
		g.Go(func() error {
			status, output, dur := timedExecute(gctx, gate)
			outcomes[i] = outcome{status: status, output: output, dur: dur}

			if status == domain.StatusPass {
				e.log.Info(fmt.Sprintf("%s: PASS", gate.Name()))
			} else {
				e.log.Info(fmt.Sprintf("%s: FAIL", gate.Name()))
			}
			return nil
		})
	}
	_ = g.Wait() // workers never error; join before any result is read

	v := Verdict{AllPassed: true, Results: make([]domain.GateResult, 0, len(all))}
	var failures []string
	for i, gate := range all {
		o := outcomes[i]
		v.Results = append(v.Results, domain.NewGateResult(gate.Name(), o.status, truncate(o.output), o.dur))
		if o.status != domain.StatusPass {
			failures = append(failures, fmt.Sprintf("%s FAILED:\n%s", gate.Name(), o.output))
		}
	}
	if len(failures) > 0 {
		v.AllPassed = false
		v.FailureText = strings.Join(failures, "\n\n")
	}
	return v
}

func timedExecute(ctx context.Context, g Gate) (domain.GateStatus, string, time.Duration) {
	start := time.Now()
	status, output := g.Execute(ctx)
	return status, output, time.Since(start)
}

func truncate(s string) string {
	if len(s) <= outputLimit {
		return s
	}
	return s[:outputLimit]
}
