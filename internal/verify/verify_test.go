package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/devloop/internal/detect"
	"github.com/lucasnoah/devloop/internal/logging"
)

// scriptedAgent returns canned outputs in order and records prompts.
type scriptedAgent struct {
	prompts []string
	outputs []string
	errs    []error
}

func (a *scriptedAgent) Run(_ context.Context, prompt string, _ time.Duration, _ int) (string, error) {
	i := len(a.prompts)
	a.prompts = append(a.prompts, prompt)
	var out string
	if i < len(a.outputs) {
		out = a.outputs[i]
	}
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	return out, err
}

func testOpts(t *testing.T) Options {
	t.Helper()
	return Options{
		RequirementsFile: "requirements.md",
		OutputDir:        t.TempDir(),
		Project: detect.ProjectConfig{
			ChangedFiles:     []string{"a.go", "b.go"},
			InstructionFiles: []string{"CLAUDE.md"},
		},
		Timeout:    time.Minute,
		MaxRetries: 2,
	}
}

func TestRun_PassMarkerPresent(t *testing.T) {
	agent := &scriptedAgent{outputs: []string{
		"The code implements a widget.",
		"## Verdict\nTRIANGULAR_PASS\n",
	}}
	opts := testOpts(t)

	passed, err := Run(context.Background(), agent, logging.Nop(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Error("expected pass")
	}
	if len(agent.prompts) != 2 {
		t.Fatalf("agent calls = %d, want 2", len(agent.prompts))
	}

	// Phase B must see changed files but never the requirements content.
	if !strings.Contains(agent.prompts[0], "a.go\nb.go") {
		t.Errorf("blind review prompt missing changed files:\n%s", agent.prompts[0])
	}
	if !strings.Contains(agent.prompts[0], "Do NOT read any requirements document") {
		t.Errorf("blind review prompt missing restriction")
	}
	// Phase C must reference the written review artifact.
	if !strings.Contains(agent.prompts[1], filepath.Join(opts.OutputDir, BlindReviewFile)) {
		t.Errorf("discrepancy prompt missing blind review path:\n%s", agent.prompts[1])
	}

	review, err := os.ReadFile(filepath.Join(opts.OutputDir, BlindReviewFile))
	if err != nil || string(review) != "The code implements a widget." {
		t.Errorf("blind review artifact = %q, %v", review, err)
	}
	report, err := os.ReadFile(filepath.Join(opts.OutputDir, ReportFile))
	if err != nil || !strings.Contains(string(report), "TRIANGULAR_PASS") {
		t.Errorf("discrepancy artifact = %q, %v", report, err)
	}
}

func TestRun_MarkerAbsentFails(t *testing.T) {
	agent := &scriptedAgent{outputs: []string{
		"analysis",
		"## Verdict\nFix the missing validation on input.",
	}}

	passed, err := Run(context.Background(), agent, logging.Nop(), testOpts(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if passed {
		t.Error("expected fail without pass marker")
	}
}

func TestRun_MarkerIsSubstringMatch(t *testing.T) {
	// Even a quoted marker counts; the check is deliberately simple.
	agent := &scriptedAgent{outputs: []string{
		"analysis",
		"I will not output TRIANGULAR_PASS because requirements are missed.",
	}}

	passed, err := Run(context.Background(), agent, logging.Nop(), testOpts(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Error("substring match should pass even when quoted")
	}
}

func TestRun_AgentErrorPropagates(t *testing.T) {
	agent := &scriptedAgent{errs: []error{errors.New("agent down")}}

	_, err := Run(context.Background(), agent, logging.Nop(), testOpts(t))
	if err == nil || !strings.Contains(err.Error(), "blind review") {
		t.Errorf("err = %v, want blind review failure", err)
	}
}
