package detect

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// gitTimeout bounds each git invocation during detection.
const gitTimeout = 10 * time.Second

func gitLines(root string, args ...string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == changedFilesCap {
			break
		}
	}
	return lines
}

// extensionsByType maps project types to the source globs used when git
// reports nothing changed.
var extensionsByType = map[string][]string{
	"python": {".py"},
	"node":   {".ts", ".tsx", ".js", ".jsx"},
	"rust":   {".rs"},
	"go":     {".go"},
}

var skipDirs = map[string]bool{
	"node_modules": true,
	".venv":        true,
	"target":       true,
	"__pycache__":  true,
}

// ChangedFiles returns the files changed on the current branch relative
// to baseBranch: committed, staged, unstaged, and untracked, deduped
// and sorted. When git reports nothing, it falls back to globbing
// source files by extension. CHANGED_FILES overrides.
func ChangedFiles(root, baseBranch, projectType string) []string {
	if v := os.Getenv("CHANGED_FILES"); v != "" {
		return strings.Fields(v)
	}

	set := make(map[string]bool)
	for _, lines := range [][]string{
		gitLines(root, "diff", "--name-only", baseBranch+"..HEAD"),
		gitLines(root, "diff", "--name-only", "--cached"),
		gitLines(root, "diff", "--name-only", "HEAD"),
		gitLines(root, "ls-files", "--others", "--exclude-standard"),
	} {
		for _, f := range lines {
			set[f] = true
		}
	}

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)

	if len(files) == 0 {
		files = sourceFallback(root, projectType)
	}
	if len(files) == 0 {
		files = []string{"No changed files detected"}
	}
	return files
}

// sourceFallback walks the tree collecting source files by extension,
// skipping dependency and build directories.
func sourceFallback(root, projectType string) []string {
	exts, ok := extensionsByType[projectType]
	if !ok {
		exts = []string{".py", ".ts", ".js", ".rs", ".go"}
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}

	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !extSet[filepath.Ext(path)] {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		if len(files) == changedFilesCap {
			return filepath.SkipAll
		}
		return nil
	})
	sort.Strings(files)
	return files
}
