// Package verify implements triangular verification: a blind code
// review by one agent and a requirements-vs-review discrepancy report
// by another, with neither party seeing both sides at once.
package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/devloop/internal/detect"
	"github.com/lucasnoah/devloop/internal/domain"
	"github.com/lucasnoah/devloop/internal/logging"
	"github.com/lucasnoah/devloop/internal/prompt"
	"github.com/lucasnoah/devloop/internal/runner"
)

// BlindReviewFile and ReportFile are the artifact names written under
// the output directory, overwritten on every verification attempt.
const (
	BlindReviewFile = "blind-review.md"
	ReportFile      = "discrepancy-report.md"
)

// Options configures a verification run.
type Options struct {
	RequirementsFile string
	OutputDir        string
	Project          detect.ProjectConfig
	Timeout          time.Duration
	MaxRetries       int
}

// Run executes the two-phase protocol and reports whether the
// discrepancy report contains the pass marker. The check is a plain
// substring test; a marker quoted in discussion also counts.
func Run(ctx context.Context, agent runner.Runner, log *logging.Logger, opts Options) (bool, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return false, fmt.Errorf("create output dir: %w", err)
	}

	blindReviewPath := filepath.Join(opts.OutputDir, BlindReviewFile)
	reportPath := filepath.Join(opts.OutputDir, ReportFile)

	log.Info("Started triangular verification")
	log.Info("Requirements: " + opts.RequirementsFile)
	log.Info("Changed files", zap.Int("count", len(opts.Project.ChangedFiles)))

	// Phase B: blind review, code and conventions only, no requirements.
	log.Info("Phase B: Blind review (read code only, describe behavior)")
	promptB, err := prompt.BlindReview(
		opts.RequirementsFile,
		contextSection(opts.Project),
		strings.Join(opts.Project.ChangedFiles, "\n"),
	)
	if err != nil {
		return false, fmt.Errorf("build blind review prompt: %w", err)
	}
	outputB, err := agent.Run(ctx, promptB, opts.Timeout, opts.MaxRetries)
	if err != nil {
		return false, fmt.Errorf("blind review: %w", err)
	}
	if err := os.WriteFile(blindReviewPath, []byte(outputB), 0o644); err != nil {
		return false, fmt.Errorf("write blind review: %w", err)
	}
	log.Info("Blind review saved to " + blindReviewPath)

	// Phase C: discrepancy report from requirements and blind review, no code.
	log.Info("Phase C: Discrepancy report (requirements vs blind review)")
	promptC, err := prompt.Discrepancy(opts.RequirementsFile, blindReviewPath, domain.PassMarker)
	if err != nil {
		return false, fmt.Errorf("build discrepancy prompt: %w", err)
	}
	outputC, err := agent.Run(ctx, promptC, opts.Timeout, opts.MaxRetries)
	if err != nil {
		return false, fmt.Errorf("discrepancy report: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(outputC), 0o644); err != nil {
		return false, fmt.Errorf("write discrepancy report: %w", err)
	}
	log.Info("Discrepancy report saved to " + reportPath)

	passed := strings.Contains(outputC, domain.PassMarker)
	if passed {
		log.Info("RESULT: PASS")
	} else {
		log.Info("RESULT: FAIL — issues found in " + reportPath)
	}
	return passed, nil
}

// contextSection lists the convention and design files Agent B should
// read before reviewing.
func contextSection(p detect.ProjectConfig) string {
	var lines []string
	if len(p.InstructionFiles) > 0 {
		lines = append(lines, "Project rules/conventions: "+strings.Join(p.InstructionFiles, " "))
	}
	if len(p.DesignDocs) > 0 {
		lines = append(lines, "Design documents: "+strings.Join(p.DesignDocs, " "))
	}
	return strings.Join(lines, "\n")
}
