package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/devloop/internal/logging"
)

// fakeAgent writes a shell script standing in for the claude binary and
// returns a runner pointed at it, recording every backoff sleep.
func fakeAgent(t *testing.T, script string) (*CLIRunner, *[]time.Duration) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake agent: %v", err)
	}

	var sleeps []time.Duration
	r := NewCLIRunner(logging.Nop())
	r.binary = path
	r.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return r, &sleeps
}

func TestRun_Success(t *testing.T) {
	r, sleeps := fakeAgent(t, `echo "implementation done"`)

	out, err := r.Run(context.Background(), "build the thing", 30*time.Second, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "implementation done\n" {
		t.Errorf("output = %q", out)
	}
	if len(*sleeps) != 0 {
		t.Errorf("no backoff expected on success, got %v", *sleeps)
	}
}

func TestRun_RetriesWithExponentialBackoff(t *testing.T) {
	r, sleeps := fakeAgent(t, "exit 1")

	_, err := r.Run(context.Background(), "prompt", 30*time.Second, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("err = %v, want ErrRetriesExhausted", err)
	}
	if got, want := err.Error(), "claude failed after 3 attempts"; !strings.Contains(got, want) {
		t.Errorf("err = %q, want substring %q", got, want)
	}
	// Sleeps only between attempts: 2^1 then 2^2 seconds.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleeps[%d] = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestRun_FailureThenSuccessReturnsOutput(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "first-attempt")
	r, sleeps := fakeAgent(t, fmt.Sprintf(
		"if [ ! -e %q ]; then touch %q; exit 1; fi\necho recovered", marker, marker))

	out, err := r.Run(context.Background(), "prompt", 30*time.Second, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "recovered\n" {
		t.Errorf("output = %q, want the second attempt's output", out)
	}
	// Exactly one backoff sleep, 2^1 seconds, between the two attempts.
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want [2s]", *sleeps)
	}
}

func TestRun_MissingBinaryAbortsImmediately(t *testing.T) {
	var sleeps []time.Duration
	r := NewCLIRunner(logging.Nop())
	r.binary = "devloop-no-such-agent"
	r.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	_, err := r.Run(context.Background(), "prompt", 30*time.Second, 3)
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("err = %v, want ErrAgentNotFound", err)
	}
	if len(sleeps) != 0 {
		t.Errorf("missing binary must not be retried, got sleeps %v", sleeps)
	}
}

func TestRun_TimeoutIsRetried(t *testing.T) {
	r, sleeps := fakeAgent(t, "sleep 5")

	_, err := r.Run(context.Background(), "prompt", 50*time.Millisecond, 2)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("sleeps = %v, want exactly one between two attempts", *sleeps)
	}
}

func TestRun_TimeoutNotHeldOpenByAgentChild(t *testing.T) {
	// The backgrounded sleep keeps the output pipes open after the
	// timeout kills the agent itself.
	r, _ := fakeAgent(t, "sleep 30 & sleep 30")

	start := time.Now()
	_, err := r.Run(context.Background(), "prompt", 50*time.Millisecond, 1)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("call blocked for %s past the timeout", elapsed)
	}
}

func TestPreflight(t *testing.T) {
	r := NewCLIRunner(logging.Nop())
	r.binary = "sh" // always on PATH
	if err := r.Preflight(); err != nil {
		t.Errorf("preflight with existing binary: %v", err)
	}

	r.binary = "devloop-no-such-binary"
	if !errors.Is(r.Preflight(), ErrAgentNotFound) {
		t.Error("preflight should report missing binary")
	}
}
