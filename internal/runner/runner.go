// Package runner wraps the external generation agent ("claude" CLI):
// one prompt in, captured output out, with per-call timeout and bounded
// retries with exponential backoff.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/devloop/internal/logging"
)

// ErrAgentNotFound means the agent executable is missing from PATH.
// This is a fatal precondition: no retry can fix a missing binary.
var ErrAgentNotFound = errors.New("'claude' CLI not found in PATH. Install Claude Code first")

// ErrRetriesExhausted means every attempt failed with a transient error.
var ErrRetriesExhausted = errors.New("agent retries exhausted")

// stderrLogLimit bounds stderr excerpts in warning logs.
const stderrLogLimit = 500

// waitDelay releases Wait after a timeout kill even when a child of
// the agent still holds the output pipes open.
const waitDelay = time.Second

// Runner invokes the external generation agent with a prompt.
type Runner interface {
	Run(ctx context.Context, prompt string, timeout time.Duration, maxRetries int) (string, error)
}

// CLIRunner shells out to the claude CLI with retry and backoff.
type CLIRunner struct {
	binary string
	log    *logging.Logger

	// sleep is a test seam; defaults to time.Sleep.
	sleep func(time.Duration)
}

// NewCLIRunner creates a CLIRunner logging through log.
func NewCLIRunner(log *logging.Logger) *CLIRunner {
	return &CLIRunner{
		binary: "claude",
		log:    log,
		sleep:  time.Sleep,
	}
}

// Preflight verifies the agent executable can be located at all.
func (r *CLIRunner) Preflight() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return ErrAgentNotFound
	}
	return nil
}

// Run attempts the agent call up to maxRetries times. A zero exit
// returns the captured stdout immediately. Non-zero exits and timeouts
// are retried after sleeping 2^attempt seconds. A missing executable
// aborts immediately with ErrAgentNotFound.
func (r *CLIRunner) Run(ctx context.Context, prompt string, timeout time.Duration, maxRetries int) (string, error) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		out, err := r.runOnce(ctx, prompt, timeout, attempt)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrAgentNotFound) {
			return "", err
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<attempt) * time.Second
			r.log.Info(fmt.Sprintf("Retrying in %s...", backoff))
			r.sleep(backoff)
		}
	}
	return "", fmt.Errorf("claude failed after %d attempts: %w", maxRetries, ErrRetriesExhausted)
}

func (r *CLIRunner) runOnce(ctx context.Context, prompt string, timeout time.Duration, attempt int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, r.binary, "--print", "-p", prompt)
	cmd.WaitDelay = waitDelay
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return "", ErrAgentNotFound
	}
	if callCtx.Err() == context.DeadlineExceeded {
		r.log.Warn(fmt.Sprintf("claude timed out after %s (attempt %d)", timeout, attempt))
		return "", fmt.Errorf("agent timed out after %s", timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.log.Warn(fmt.Sprintf("claude exited with code %d (attempt %d)", exitErr.ExitCode(), attempt))
		if s := stderr.String(); s != "" {
			r.log.Warn("stderr: "+truncate(s, stderrLogLimit), zap.Int("attempt", attempt))
		}
		return "", fmt.Errorf("agent exited with code %d", exitErr.ExitCode())
	}
	return "", fmt.Errorf("run agent: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
