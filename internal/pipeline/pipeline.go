// Package pipeline drives the bounded self-correction loop:
// implementation by the external agent, quality gates, triangular
// verification, and the feedback that ties failing iterations to the
// next corrective prompt.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/devloop/internal/detect"
	"github.com/lucasnoah/devloop/internal/domain"
	"github.com/lucasnoah/devloop/internal/gates"
	"github.com/lucasnoah/devloop/internal/logging"
	"github.com/lucasnoah/devloop/internal/prompt"
	"github.com/lucasnoah/devloop/internal/runner"
	"github.com/lucasnoah/devloop/internal/verify"
)

// NamedGateFunc pairs an in-process gate with its name.
type NamedGateFunc struct {
	Name string
	Fn   domain.GateFunc
}

// HistorySink records finalized run metrics somewhere durable beyond
// the metrics artifact (e.g. Postgres). Recording is best-effort.
type HistorySink interface {
	RecordRun(ctx context.Context, m *domain.PipelineMetrics) error
}

// Options configures a pipeline run.
type Options struct {
	PromptFile       string
	RequirementsFile string
	MaxIterations    int
	Timeout          time.Duration
	MaxRetries       int
	WebhookURL       string
	ParallelGates    bool
	Project          detect.ProjectConfig
	CustomGates      []NamedGateFunc
}

// Orchestrator sequences Implementation → Gates → Verification per
// iteration until convergence or the iteration budget runs out.
type Orchestrator struct {
	store    *Store
	log      *logging.Logger
	agent    runner.Runner
	executor *gates.Executor
	commands gates.CommandRunner
	plugins  gates.PluginProvider
	history  HistorySink // nil disables run-history recording
}

// New creates an Orchestrator. plugins may be a provider over an empty
// directory; history may be nil.
func New(store *Store, log *logging.Logger, agent runner.Runner, plugins gates.PluginProvider, history HistorySink) *Orchestrator {
	return &Orchestrator{
		store:    store,
		log:      log,
		agent:    agent,
		executor: gates.NewExecutor(log),
		commands: &gates.ExecRunner{},
		plugins:  plugins,
		history:  history,
	}
}

// SetCommandRunner overrides shell execution for gates (for testing).
func (o *Orchestrator) SetCommandRunner(r gates.CommandRunner) {
	o.commands = r
}

// Run executes the full loop and reports whether it converged.
// PipelineMetrics is finalized and persisted on every exit path,
// including fatal aborts before iteration 1.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (converged bool, err error) {
	recorder := NewRecorder()

	// Cooperative shutdown: the signal flips a flag observed only at
	// iteration and phase boundaries; in-flight phases finish naturally.
	var shutdown atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			o.log.Warn(fmt.Sprintf("Received %s, will exit after current phase...", sig))
			shutdown.Store(true)
		}
	}()

	defer func() {
		// Restore previously-installed handlers, then finalize and
		// persist metrics no matter how the run ended.
		signal.Stop(sigCh)
		close(sigCh)

		metrics := recorder.Finalize(converged)
		if saveErr := o.store.SaveMetrics(metrics); saveErr != nil {
			o.log.Error("save metrics: " + saveErr.Error())
		}
		if o.history != nil {
			if recErr := o.history.RecordRun(context.Background(), metrics); recErr != nil {
				o.log.Warn("record run history: " + recErr.Error())
			}
		}
		if opts.WebhookURL != "" {
			sendWebhook(opts.WebhookURL, webhookPayload{
				Pipeline:   "devloop",
				Converged:  converged,
				Iterations: metrics.TotalIterations,
				DurationS:  metrics.TotalDurationS,
			})
		}
	}()

	// Allow nested agent calls from inside an agent-driven session.
	os.Unsetenv("CLAUDECODE")

	o.log.Info("=== Agentic Dev Pipeline ===")
	o.log.Info(opts.Project.String())
	o.log.Info("Max iterations: " + fmt.Sprint(opts.MaxIterations))
	o.log.Info("Prompt: " + opts.PromptFile)
	o.log.Info("Requirements: " + opts.RequirementsFile)
	o.log.Info("Output dir: " + o.store.Dir())

	// Fatal precondition: a missing agent binary cannot be retried.
	if p, ok := o.agent.(interface{ Preflight() error }); ok {
		if preErr := p.Preflight(); preErr != nil {
			o.log.Error(preErr.Error())
			return false, preErr
		}
	}

	for iteration := 1; iteration <= opts.MaxIterations; iteration++ {
		if shutdown.Load() {
			o.log.Warn("Shutdown requested, stopping pipeline")
			break
		}

		iterStart := time.Now()
		iter := domain.NewIterationMetrics(iteration)
		o.log.Info(fmt.Sprintf("--- Iteration %d / %d ---", iteration, opts.MaxIterations))

		// Phase 1: implementation (or targeted fix).
		o.log.PhaseStart("phase1_implement", iteration)
		if err := o.runImplementation(ctx, opts, iteration); err != nil {
			o.log.PhaseEnd("phase1_implement", "error", iteration)
			o.log.Error(err.Error())
			return false, err
		}
		iter.Phase1Done = true
		o.log.PhaseEnd("phase1_implement", "completed", iteration)

		if shutdown.Load() {
			break
		}

		// Phase 2: quality gates.
		o.log.PhaseStart("phase2_quality_gates", iteration)
		verdict := o.executor.Execute(ctx, o.assembleGates(opts), opts.ParallelGates)
		iter.GateResults = verdict.Results

		if !verdict.AllPassed {
			if err := o.store.WriteFeedback(verdict.FailureText); err != nil {
				return false, err
			}
			iter.Outcome = domain.OutcomeGateFail
			iter.DurationS = domain.RoundSeconds(time.Since(iterStart))
			recorder.Append(iter)
			o.log.PhaseEnd("phase2_quality_gates", "fail", iteration)
			o.log.Info(fmt.Sprintf("[Phase 2] FAILED — looping back (took %.2fs)", iter.DurationS))
			continue
		}
		o.log.PhaseEnd("phase2_quality_gates", "pass", iteration)

		if shutdown.Load() {
			break
		}

		// Phase 3: triangular verification.
		o.log.PhaseStart("phase3_triangular_verify", iteration)
		passed, verifyErr := verify.Run(ctx, o.agent, o.log, verify.Options{
			RequirementsFile: opts.RequirementsFile,
			OutputDir:        o.store.Dir(),
			Project:          opts.Project,
			Timeout:          opts.Timeout,
			MaxRetries:       opts.MaxRetries,
		})
		if verifyErr != nil {
			o.log.PhaseEnd("phase3_triangular_verify", "error", iteration)
			o.log.Error(verifyErr.Error())
			return false, verifyErr
		}

		if !passed {
			iter.VerificationStatus = domain.StatusFail
			if err := o.writeVerifyFeedback(); err != nil {
				return false, err
			}
			iter.Outcome = domain.OutcomeVerifyFail
			iter.DurationS = domain.RoundSeconds(time.Since(iterStart))
			recorder.Append(iter)
			o.log.PhaseEnd("phase3_triangular_verify", "fail", iteration)
			o.log.Info(fmt.Sprintf("[Phase 3] FAILED — looping back (took %.2fs)", iter.DurationS))
			continue
		}
		iter.VerificationStatus = domain.StatusPass
		o.log.PhaseEnd("phase3_triangular_verify", "pass", iteration)

		// Converged.
		iter.Outcome = domain.OutcomePass
		iter.DurationS = domain.RoundSeconds(time.Since(iterStart))
		recorder.Append(iter)

		o.log.Info("=== LOOP_COMPLETE ===")
		o.log.Info(fmt.Sprintf("Finished in %d iteration(s), total %.2fs",
			iteration, recorder.Elapsed().Seconds()), zap.Int("iterations", iteration))

		if err := o.store.ClearFeedback(); err != nil {
			return false, err
		}
		converged = true
		break
	}

	if !converged && !shutdown.Load() {
		o.log.Info("=== MAX ITERATIONS REACHED ===")
		o.log.Info(fmt.Sprintf("Completed %d iterations without full convergence.", opts.MaxIterations))
		o.log.Info("Review remaining issues in: " + o.store.FeedbackPath())
		o.log.Info("Review full log in: " + o.store.RunLogPath())
	}
	return converged, nil
}

// runImplementation invokes the agent with the initial prompt on
// iteration 1 or the corrective prompt afterwards, appending the
// transcript to the run log.
func (o *Orchestrator) runImplementation(ctx context.Context, opts Options, iteration int) error {
	var text string
	var err error
	if iteration == 1 {
		text, err = prompt.Initial(opts.PromptFile)
	} else {
		text, err = prompt.Corrective(opts.PromptFile, o.store.FeedbackPath(), iteration)
	}
	if err != nil {
		return err
	}

	output, err := o.agent.Run(ctx, text, opts.Timeout, opts.MaxRetries)
	if err != nil {
		return err
	}
	return o.log.Raw(output)
}

// assembleGates merges the configured built-in checks, discovered
// plugins, and supplied in-process gates, in that declaration order.
func (o *Orchestrator) assembleGates(opts Options) []gates.Gate {
	var all []gates.Gate
	builtins := []struct{ name, cmd string }{
		{"lint", opts.Project.LintCmd},
		{"test", opts.Project.TestCmd},
		{"security", opts.Project.SecurityCmd},
	}
	for _, b := range builtins {
		if b.cmd != "" {
			all = append(all, gates.NewCommandGate(b.name, b.cmd, o.commands, opts.Timeout))
		}
	}
	all = append(all, gates.Gates(o.plugins, o.commands, opts.Timeout)...)
	for _, cg := range opts.CustomGates {
		all = append(all, gates.NewFuncGate(cg.Name, cg.Fn))
	}
	return all
}

// writeVerifyFeedback copies the discrepancy report into the feedback
// artifact, or a fallback note when the report is missing.
func (o *Orchestrator) writeVerifyFeedback() error {
	report, err := os.ReadFile(o.store.ReportPath())
	if err != nil {
		return o.store.WriteFeedback("Triangular verification failed but no discrepancy report found.")
	}
	return o.store.WriteFeedback(string(report))
}
