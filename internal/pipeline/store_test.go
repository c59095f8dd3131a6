package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".devloop")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", s.Dir(), dir)
	}
}

func TestStorePaths(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.RunLogPath() != filepath.Join(dir, "loop-execution.log") {
		t.Errorf("RunLogPath = %q", s.RunLogPath())
	}
	if s.FeedbackPath() != filepath.Join(dir, "feedback.txt") {
		t.Errorf("FeedbackPath = %q", s.FeedbackPath())
	}
	if s.ReportPath() != filepath.Join(dir, "discrepancy-report.md") {
		t.Errorf("ReportPath = %q", s.ReportPath())
	}
}

func TestFeedbackLifecycle(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.WriteFeedback("first failure"); err != nil {
		t.Fatalf("WriteFeedback: %v", err)
	}
	if err := s.WriteFeedback("second failure"); err != nil {
		t.Fatalf("WriteFeedback overwrite: %v", err)
	}
	data, err := os.ReadFile(s.FeedbackPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second failure" {
		t.Errorf("feedback = %q, want overwrite semantics", data)
	}

	if err := s.ClearFeedback(); err != nil {
		t.Fatalf("ClearFeedback: %v", err)
	}
	if _, err := os.Stat(s.FeedbackPath()); !os.IsNotExist(err) {
		t.Error("feedback artifact should be gone after clear")
	}
	// Clearing again is not an error.
	if err := s.ClearFeedback(); err != nil {
		t.Errorf("ClearFeedback on missing file: %v", err)
	}
}

func TestSaveMetrics(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMetrics(map[string]any{"converged": true}); err != nil {
		t.Fatalf("SaveMetrics: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), MetricsFile))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("metrics artifact is not valid JSON: %v", err)
	}
	if got["converged"] != true {
		t.Errorf("metrics = %v", got)
	}
}
