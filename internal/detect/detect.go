// Package detect derives a project's quality-gate commands and context
// file lists from marker files, Makefile targets, npm scripts, and
// installed tools. Every detected value can be overridden with an
// environment variable (PROJECT_TYPE, LINT_CMD, TEST_CMD, ...).
package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ProjectConfig is the detected project configuration consumed by the
// pipeline. Read-only to the pipeline core.
type ProjectConfig struct {
	ProjectType      string   `json:"project_type" yaml:"project_type"`
	SrcDirs          string   `json:"src_dirs" yaml:"src_dirs"`
	LintCmd          string   `json:"lint_cmd" yaml:"lint_cmd"`
	TestCmd          string   `json:"test_cmd" yaml:"test_cmd"`
	SecurityCmd      string   `json:"security_cmd" yaml:"security_cmd"`
	InstructionFiles []string `json:"instruction_files" yaml:"instruction_files"`
	DesignDocs       []string `json:"design_docs" yaml:"design_docs"`
	ChangedFiles     []string `json:"changed_files" yaml:"changed_files"`
	BaseBranch       string   `json:"base_branch" yaml:"base_branch"`
}

// String renders the config as the block printed at run start and by
// the detect command.
func (c ProjectConfig) String() string {
	orSkip := func(s string) string {
		if s == "" {
			return "<none — will skip>"
		}
		return s
	}
	orNone := func(ss []string) string {
		if len(ss) == 0 {
			return "<none>"
		}
		return strings.Join(ss, " ")
	}
	lines := []string{
		"=== Detected Project Configuration ===",
		"  PROJECT_TYPE:      " + c.ProjectType,
		"  SRC_DIRS:          " + c.SrcDirs,
		"  LINT_CMD:          " + orSkip(c.LintCmd),
		"  TEST_CMD:          " + orSkip(c.TestCmd),
		"  SECURITY_CMD:      " + orSkip(c.SecurityCmd),
		"  INSTRUCTION_FILES: " + orNone(c.InstructionFiles),
		"  DESIGN_DOCS:       " + orNone(c.DesignDocs),
		"  BASE_BRANCH:       " + c.BaseBranch,
		"=======================================",
	}
	return strings.Join(lines, "\n")
}

// changedFilesCap bounds the changed-file list fed into verification prompts.
const changedFilesCap = 200

func cmdExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// hasMakefileTarget reports whether the project Makefile declares the target.
func hasMakefileTarget(root, target string) bool {
	content, err := os.ReadFile(filepath.Join(root, "Makefile"))
	if err != nil {
		return false
	}
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(target) + `:`)
	return re.Match(content)
}

// hasNpmScript reports whether package.json declares the script.
func hasNpmScript(root, script string) bool {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]json.RawMessage `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[script]
	return ok
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ProjectType returns python, node, rust, go, or unknown, from marker
// files. PROJECT_TYPE overrides.
func ProjectType(root string) string {
	if v := os.Getenv("PROJECT_TYPE"); v != "" {
		return v
	}
	switch {
	case isFile(filepath.Join(root, "pyproject.toml")),
		isFile(filepath.Join(root, "setup.py")),
		isFile(filepath.Join(root, "setup.cfg")):
		return "python"
	case isFile(filepath.Join(root, "package.json")):
		return "node"
	case isFile(filepath.Join(root, "Cargo.toml")):
		return "rust"
	case isFile(filepath.Join(root, "go.mod")):
		return "go"
	}
	return "unknown"
}

// SrcDirs returns a space-separated list of conventional source
// directories present under root, or "." when none exist.
func SrcDirs(root string) string {
	if v := os.Getenv("SRC_DIRS"); v != "" {
		return v
	}
	var dirs []string
	for _, d := range []string{"src", "app", "lib", "pkg"} {
		if isDir(filepath.Join(root, d)) {
			dirs = append(dirs, d+"/")
		}
	}
	if len(dirs) == 0 {
		return "."
	}
	return strings.Join(dirs, " ")
}

// LintCmd resolves the lint command for the project, preferring a
// Makefile target, then an npm script, then installed tools. Empty
// means no lint gate.
func LintCmd(root, projectType, srcDirs string) string {
	if v := os.Getenv("LINT_CMD"); v != "" {
		return v
	}
	if hasMakefileTarget(root, "lint") {
		return "make lint"
	}
	if projectType == "node" && hasNpmScript(root, "lint") {
		return "npm run lint"
	}

	switch projectType {
	case "python":
		for _, tool := range []string{"ruff", "flake8", "pylint"} {
			if cmdExists(tool) {
				if tool == "ruff" {
					return fmt.Sprintf("ruff check %s", srcDirs)
				}
				return fmt.Sprintf("%s %s", tool, srcDirs)
			}
		}
	case "node":
		if cmdExists("eslint") {
			return fmt.Sprintf("npx eslint %s", srcDirs)
		}
	case "rust":
		return "cargo clippy -- -D warnings"
	case "go":
		if cmdExists("golangci-lint") {
			return "golangci-lint run ./..."
		}
		return "go vet ./..."
	}
	return ""
}

// TestCmd resolves the test command. Empty means no test gate.
func TestCmd(root, projectType string) string {
	if v := os.Getenv("TEST_CMD"); v != "" {
		return v
	}
	if hasMakefileTarget(root, "test") {
		return "make test"
	}
	if projectType == "node" && hasNpmScript(root, "test") {
		return "npm test"
	}

	switch projectType {
	case "python":
		if cmdExists("pytest") {
			return "pytest -q"
		}
		if isDir(filepath.Join(root, "tests")) || isDir(filepath.Join(root, "test")) {
			return "python -m unittest discover"
		}
	case "node":
		if cmdExists("jest") {
			return "npx jest"
		}
		if cmdExists("vitest") {
			return "npx vitest run"
		}
	case "rust":
		return "cargo test"
	case "go":
		return "go test ./..."
	}
	return ""
}

// SecurityCmd resolves the security scan command. SECURITY_CMD may be
// set to an empty string to skip the gate explicitly.
func SecurityCmd(root, projectType, srcDirs string) string {
	if v, ok := os.LookupEnv("SECURITY_CMD"); ok {
		return v
	}
	if cmdExists("semgrep") {
		return fmt.Sprintf("semgrep scan --config auto --quiet %s", srcDirs)
	}

	switch projectType {
	case "python":
		if cmdExists("bandit") {
			return fmt.Sprintf("bandit -r %s -q", srcDirs)
		}
	case "node":
		return "npm audit --audit-level=high"
	case "rust":
		if cmdExists("cargo-audit") {
			return "cargo audit"
		}
	case "go":
		if cmdExists("gosec") {
			return "gosec ./..."
		}
	}
	return ""
}

// InstructionFiles returns project convention files fed to the blind
// reviewer: well-known names plus .claude/rules/*.md.
func InstructionFiles(root string) []string {
	if v := os.Getenv("INSTRUCTION_FILES"); v != "" {
		return strings.Fields(v)
	}
	var files []string
	seen := make(map[string]bool)
	for _, name := range []string{"CLAUDE.md", "convention.md", "CONTRIBUTING.md"} {
		if isFile(filepath.Join(root, name)) && !seen[name] {
			files = append(files, name)
			seen[name] = true
		}
	}
	rulesDir := filepath.Join(root, ".claude", "rules")
	if matches, err := filepath.Glob(filepath.Join(rulesDir, "*.md")); err == nil {
		sort.Strings(matches)
		for _, m := range matches {
			rel, err := filepath.Rel(root, m)
			if err != nil || seen[rel] {
				continue
			}
			files = append(files, rel)
			seen[rel] = true
		}
	}
	return files
}

// DesignDocs returns architecture docs found at conventional paths.
func DesignDocs(root string) []string {
	if v := os.Getenv("DESIGN_DOCS"); v != "" {
		return strings.Fields(v)
	}
	candidates := []string{
		"docs/design-doc.md",
		"docs/architecture.md",
		"docs/design.md",
		"ARCHITECTURE.md",
	}
	var files []string
	for _, f := range candidates {
		if isFile(filepath.Join(root, f)) {
			files = append(files, f)
		}
	}
	return files
}

// All runs every detection step and returns the complete ProjectConfig.
func All(root, baseBranch string) ProjectConfig {
	if baseBranch == "" {
		baseBranch = os.Getenv("BASE_BRANCH")
	}
	if baseBranch == "" {
		baseBranch = "main"
	}

	ptype := ProjectType(root)
	sdirs := SrcDirs(root)

	return ProjectConfig{
		ProjectType:      ptype,
		SrcDirs:          sdirs,
		LintCmd:          LintCmd(root, ptype, sdirs),
		TestCmd:          TestCmd(root, ptype),
		SecurityCmd:      SecurityCmd(root, ptype, sdirs),
		InstructionFiles: InstructionFiles(root),
		DesignDocs:       DesignDocs(root),
		ChangedFiles:     ChangedFiles(root, baseBranch, ptype),
		BaseBranch:       baseBranch,
	}
}
