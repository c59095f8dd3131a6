package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// chdir is t.Chdir for Go toolchains older than 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	// rootCmd is shared between tests; clear help flags left set by a
	// previous Execute so a prior "--help" run doesn't leak into this one.
	for _, c := range append(rootCmd.Commands(), rootCmd) {
		if f := c.Flags().Lookup("help"); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "devloop version test-version") {
		t.Errorf("version output = %q", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{"run", "verify", "detect", "init", "history", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	for _, sub := range []string{"run", "verify", "detect", "init", "history"} {
		out, err := executeCommand(sub, "--help")
		if err != nil {
			t.Errorf("%s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("%s --help produced no output", sub)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

func TestRunRequiresPromptFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := executeCommand("run")
	if err == nil {
		t.Fatal("run without a prompt file should fail")
	}
	if !strings.Contains(err.Error(), "prompt") {
		t.Errorf("err = %v", err)
	}
}
