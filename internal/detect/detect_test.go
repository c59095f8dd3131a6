package detect

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, root string, name string, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// clearOverrides blanks the detection override variables so results
// depend only on the temp directory contents.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"PROJECT_TYPE", "SRC_DIRS", "LINT_CMD", "TEST_CMD",
		"INSTRUCTION_FILES", "DESIGN_DOCS", "CHANGED_FILES", "BASE_BRANCH",
	} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	// SECURITY_CMD set-but-empty means "skip"; that is the safe default
	// for tests since scanner availability varies by machine.
	t.Setenv("SECURITY_CMD", "")
}

func TestProjectType(t *testing.T) {
	clearOverrides(t)
	tests := []struct {
		marker string
		want   string
	}{
		{"pyproject.toml", "python"},
		{"setup.py", "python"},
		{"package.json", "node"},
		{"Cargo.toml", "rust"},
		{"go.mod", "go"},
	}
	for _, tt := range tests {
		root := t.TempDir()
		touch(t, root, tt.marker, "")
		if got := ProjectType(root); got != tt.want {
			t.Errorf("ProjectType with %s = %q, want %q", tt.marker, got, tt.want)
		}
	}

	if got := ProjectType(t.TempDir()); got != "unknown" {
		t.Errorf("empty dir = %q, want unknown", got)
	}
}

func TestProjectTypeOverride(t *testing.T) {
	clearOverrides(t)
	t.Setenv("PROJECT_TYPE", "elixir")
	if got := ProjectType(t.TempDir()); got != "elixir" {
		t.Errorf("override ignored: %q", got)
	}
}

func TestSrcDirs(t *testing.T) {
	clearOverrides(t)
	root := t.TempDir()
	if got := SrcDirs(root); got != "." {
		t.Errorf("no src dirs = %q, want .", got)
	}

	for _, d := range []string{"src", "lib"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if got := SrcDirs(root); got != "src/ lib/" {
		t.Errorf("SrcDirs = %q, want \"src/ lib/\"", got)
	}
}

func TestLintCmdPrefersMakefileTarget(t *testing.T) {
	clearOverrides(t)
	root := t.TempDir()
	touch(t, root, "Makefile", "lint:\n\truff check .\n\ntest:\n\tpytest\n")
	touch(t, root, "pyproject.toml", "")

	if got := LintCmd(root, "python", "."); got != "make lint" {
		t.Errorf("LintCmd = %q, want make lint", got)
	}
	if got := TestCmd(root, "python"); got != "make test" {
		t.Errorf("TestCmd = %q, want make test", got)
	}
}

func TestHasMakefileTargetAnchorsLineStart(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "Makefile", "all: prelint\nprelint:\n\techo no\n")
	if hasMakefileTarget(root, "lint") {
		t.Error("prelint must not match the lint target")
	}
}

func TestLintCmdNpmScript(t *testing.T) {
	clearOverrides(t)
	root := t.TempDir()
	touch(t, root, "package.json", `{"scripts": {"lint": "eslint .", "test": "jest"}}`)

	if got := LintCmd(root, "node", "."); got != "npm run lint" {
		t.Errorf("LintCmd = %q, want npm run lint", got)
	}
	if got := TestCmd(root, "node"); got != "npm test" {
		t.Errorf("TestCmd = %q, want npm test", got)
	}
}

func TestCommandOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("LINT_CMD", "my-lint --strict")
	t.Setenv("TEST_CMD", "my-test")
	root := t.TempDir()

	if got := LintCmd(root, "unknown", "."); got != "my-lint --strict" {
		t.Errorf("LintCmd = %q", got)
	}
	if got := TestCmd(root, "unknown"); got != "my-test" {
		t.Errorf("TestCmd = %q", got)
	}
}

func TestSecurityCmdEmptyOverrideSkips(t *testing.T) {
	t.Setenv("SECURITY_CMD", "")
	if got := SecurityCmd(t.TempDir(), "python", "."); got != "" {
		t.Errorf("explicit empty override should skip the gate, got %q", got)
	}
}

func TestInstructionFiles(t *testing.T) {
	clearOverrides(t)
	root := t.TempDir()
	touch(t, root, "CLAUDE.md", "")
	touch(t, root, "CONTRIBUTING.md", "")
	touch(t, root, filepath.Join(".claude", "rules", "b.md"), "")
	touch(t, root, filepath.Join(".claude", "rules", "a.md"), "")

	got := InstructionFiles(root)
	want := []string{
		"CLAUDE.md",
		"CONTRIBUTING.md",
		filepath.Join(".claude", "rules", "a.md"),
		filepath.Join(".claude", "rules", "b.md"),
	}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDesignDocs(t *testing.T) {
	clearOverrides(t)
	root := t.TempDir()
	touch(t, root, filepath.Join("docs", "architecture.md"), "")
	touch(t, root, "ARCHITECTURE.md", "")

	got := DesignDocs(root)
	if len(got) != 2 || got[0] != "docs/architecture.md" || got[1] != "ARCHITECTURE.md" {
		t.Errorf("docs = %v", got)
	}
}

func TestAll(t *testing.T) {
	clearOverrides(t)
	root := t.TempDir()
	touch(t, root, "go.mod", "module example.com/widget\n")
	touch(t, root, "Makefile", "lint:\n\tgo vet ./...\n")
	touch(t, root, "CLAUDE.md", "")

	cfg := All(root, "")
	if cfg.ProjectType != "go" {
		t.Errorf("ProjectType = %q", cfg.ProjectType)
	}
	if cfg.LintCmd != "make lint" {
		t.Errorf("LintCmd = %q", cfg.LintCmd)
	}
	if cfg.TestCmd != "go test ./..." {
		t.Errorf("TestCmd = %q", cfg.TestCmd)
	}
	if cfg.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q", cfg.BaseBranch)
	}
	if len(cfg.InstructionFiles) != 1 || cfg.InstructionFiles[0] != "CLAUDE.md" {
		t.Errorf("InstructionFiles = %v", cfg.InstructionFiles)
	}
	if len(cfg.ChangedFiles) == 0 {
		t.Error("ChangedFiles must never be empty")
	}

	rendered := cfg.String()
	for _, want := range []string{
		"=== Detected Project Configuration ===",
		"PROJECT_TYPE:      go",
		"LINT_CMD:          make lint",
		"SECURITY_CMD:      <none — will skip>",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("String() missing %q:\n%s", want, rendered)
		}
	}
}
