package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/devloop/internal/verify"
)

// Artifact filenames under the output directory.
const (
	RunLogFile   = "loop-execution.log"
	FeedbackFile = "feedback.txt"
	MetricsFile  = "metrics.json"
)

// Store manages the run's artifacts under one output directory. The
// feedback and metrics artifacts are single-writer: only the
// orchestrator touches them, between iterations.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// RunLogPath returns the run log path for the logger's file sink.
func (s *Store) RunLogPath() string {
	return filepath.Join(s.dir, RunLogFile)
}

// FeedbackPath returns the feedback artifact path.
func (s *Store) FeedbackPath() string {
	return filepath.Join(s.dir, FeedbackFile)
}

// ReportPath returns the discrepancy-report artifact path.
func (s *Store) ReportPath() string {
	return filepath.Join(s.dir, verify.ReportFile)
}

// WriteFeedback overwrites the feedback artifact with the failing
// iteration's context for the next corrective prompt.
func (s *Store) WriteFeedback(text string) error {
	if err := os.WriteFile(s.FeedbackPath(), []byte(text), 0o644); err != nil {
		return fmt.Errorf("write feedback: %w", err)
	}
	return nil
}

// ClearFeedback removes the feedback artifact. Missing is fine: on
// convergence the artifact must simply not exist.
func (s *Store) ClearFeedback() error {
	err := os.Remove(s.FeedbackPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove feedback: %w", err)
	}
	return nil
}

// SaveMetrics persists the finalized run metrics.
func (s *Store) SaveMetrics(v interface{}) error {
	return WriteJSON(filepath.Join(s.dir, MetricsFile), v)
}
