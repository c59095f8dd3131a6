// Package gates defines quality gates (shell commands, in-process
// functions, and discovered plugins) and executes a set of them
// sequentially or in parallel.
package gates

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/lucasnoah/devloop/internal/domain"
)

// unsafePattern rejects commands with obvious injection or destructive
// constructs: subshell substitution, backticks, rm chained after ; or
// &&, and redirection into /dev. This is a best-effort heuristic, not
// a sandbox.
var unsafePattern = regexp.MustCompile("\\$\\(|`|;\\s*rm\\s|&&\\s*rm\\s|>\\s*/dev/")

// SafeCommand reports whether cmd is free of the known unsafe patterns.
func SafeCommand(cmd string) bool {
	return !unsafePattern.MatchString(cmd)
}

// Gate is one named pass/fail check. The executor is agnostic to the
// gate's origin: shell command, plugin, or in-process function.
type Gate interface {
	Name() string
	// Detail is the human-readable invocation (the shell command for
	// command gates); empty for in-process gates.
	Detail() string
	Execute(ctx context.Context) (domain.GateStatus, string)
}

// CommandRunner abstracts shell execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

// waitDelay releases Wait after a context kill even when an orphaned
// child still holds the output pipes open.
const waitDelay = time.Second

func (e *ExecRunner) Run(ctx context.Context, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	// The deadline kill surfaces as a plain ExitError, so the context
	// has to be consulted before the exit code.
	if ctx.Err() != nil {
		return stdoutBuf.String(), stderrBuf.String(), -1, ctx.Err()
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
		return stdoutBuf.String(), stderrBuf.String(), exitErr.ExitCode(), nil
	}
	return stdoutBuf.String(), stderrBuf.String(), 0, nil
}

// CommandGate runs a shell command; it passes iff the exit code is 0.
type CommandGate struct {
	name    string
	command string
	runner  CommandRunner
	timeout time.Duration
}

// NewCommandGate creates a command gate executed through runner with
// the given per-command timeout.
func NewCommandGate(name, command string, runner CommandRunner, timeout time.Duration) *CommandGate {
	return &CommandGate{name: name, command: command, runner: runner, timeout: timeout}
}

func (g *CommandGate) Name() string   { return g.name }
func (g *CommandGate) Detail() string { return g.command }

// Execute runs the command. Unsafe commands are never executed and
// come back Blocked; timeouts and non-zero exits come back Fail with
// the captured output.
func (g *CommandGate) Execute(ctx context.Context) (domain.GateStatus, string) {
	if !SafeCommand(g.command) {
		return domain.StatusBlocked, fmt.Sprintf("BLOCKED: command contains unsafe patterns: %s", g.command)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	stdout, stderr, exitCode, err := g.runner.Run(cmdCtx, g.command)
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return domain.StatusFail, fmt.Sprintf("Command timed out after %ds: %s", int(g.timeout.Seconds()), g.command)
		}
		return domain.StatusFail, fmt.Sprintf("Command failed: %v", err)
	}

	output := stdout + stderr
	if exitCode != 0 {
		return domain.StatusFail, output
	}
	return domain.StatusPass, output
}

// FuncGate runs an in-process predicate. Name() carries a "callable:"
// prefix so transcripts distinguish it from command gates; failure
// messages use the raw name.
type FuncGate struct {
	name string
	fn   domain.GateFunc
}

// NewFuncGate wraps fn as a gate reported as "callable:<name>".
func NewFuncGate(name string, fn domain.GateFunc) *FuncGate {
	return &FuncGate{name: name, fn: fn}
}

func (g *FuncGate) Name() string   { return "callable:" + g.name }
func (g *FuncGate) Detail() string { return "" }

// Execute calls the predicate. An error return or a panic becomes a
// failed gate; it must never crash the pipeline.
func (g *FuncGate) Execute(_ context.Context) (status domain.GateStatus, output string) {
	defer func() {
		if r := recover(); r != nil {
			status = domain.StatusFail
			output = fmt.Sprintf("Gate '%s' raised: %v", g.name, r)
		}
	}()

	passed, msg, err := g.fn()
	if err != nil {
		return domain.StatusFail, fmt.Sprintf("Gate '%s' raised: %v", g.name, err)
	}
	if !passed {
		return domain.StatusFail, msg
	}
	return domain.StatusPass, msg
}
