package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/devloop/internal/config"
)

const promptTemplate = `# Feature: [Feature Name]

## Context

[Brief project description. What should the agent read before coding?]

Read the following for project context:
- [instruction file, e.g., CLAUDE.md, convention.md, CONTRIBUTING.md]
- [design doc, e.g., docs/design-doc.md, docs/architecture.md]

## Requirements

Read ` + "`[path/to/requirements.md]`" + ` for full requirements.

Summary:
1. [Key requirement 1]
2. [Key requirement 2]
3. [Key requirement 3]

## Existing Patterns to Follow

- Model example: ` + "`[path/to/existing/model.go]`" + `
- Test example: ` + "`[path/to/existing/model_test.go]`" + `

## Completion Criteria

- [ ] All functional requirements implemented
- [ ] Lint passes (0 errors)
- [ ] All tests pass (existing + new)
- [ ] Security scan passes (if configured)
- [ ] Project conventions followed

## On Failure

- Lint failure: read error output, fix specific issues
- Test failure: read failing test output, fix the implementation
- Security failure: read scan report, fix flagged issues
- Triangular verification failure: read discrepancy-report.md, fix each listed issue

## Completion Signal

When ALL criteria met, output exactly:
<promise>LOOP_COMPLETE</promise>
`

const requirementsTemplate = `# Requirements: [Feature Name]

## Functional Requirements

### FR-1: [Requirement Title]
- **Endpoint / Interface**: [describe]
- **Input**: [describe]
- **Output**: [describe]
- **Validation**: [describe constraints]

### FR-2: [Requirement Title]
- ...

## Non-Functional Requirements

### NFR-1: Testing
- Unit tests for each feature (happy path + error cases)

### NFR-2: Code Quality
- Follow existing project patterns
`

const yamlConfigTemplate = `# devloop configuration

prompt_file: PROMPT.md
requirements_file: requirements.md
# max_iterations: 5
# parallel_gates: true
# webhook_url: https://example.com/hooks/devloop
`

const gitignoreEntry = ".devloop/"

// runInit scaffolds the starter files and returns the actions taken.
func runInit(root string, force bool) ([]string, error) {
	var actions []string

	writeIfAbsent := func(name, content string) error {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil && !force {
			actions = append(actions, fmt.Sprintf("Skipped %s (already exists)", name))
			return nil
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		actions = append(actions, "Created "+name)
		return nil
	}

	if err := writeIfAbsent("PROMPT.md", promptTemplate); err != nil {
		return actions, err
	}
	if err := writeIfAbsent("requirements.md", requirementsTemplate); err != nil {
		return actions, err
	}
	if err := writeIfAbsent(config.FileName, yamlConfigTemplate); err != nil {
		return actions, err
	}

	gitignore := filepath.Join(root, ".gitignore")
	content, err := os.ReadFile(gitignore)
	switch {
	case os.IsNotExist(err):
		if err := os.WriteFile(gitignore, []byte(gitignoreEntry+"\n"), 0o644); err != nil {
			return actions, fmt.Errorf("write .gitignore: %w", err)
		}
		actions = append(actions, "Created .gitignore")
	case err != nil:
		return actions, fmt.Errorf("read .gitignore: %w", err)
	case strings.Contains(string(content), gitignoreEntry):
		actions = append(actions, "Skipped .gitignore (entry already exists)")
	default:
		entry := gitignoreEntry + "\n"
		if !strings.HasSuffix(string(content), "\n") {
			entry = "\n" + entry
		}
		f, err := os.OpenFile(gitignore, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return actions, fmt.Errorf("open .gitignore: %w", err)
		}
		_, werr := f.WriteString(entry)
		cerr := f.Close()
		if werr != nil {
			return actions, fmt.Errorf("append .gitignore: %w", werr)
		}
		if cerr != nil {
			return actions, fmt.Errorf("close .gitignore: %w", cerr)
		}
		actions = append(actions, fmt.Sprintf("Added %s to .gitignore", gitignoreEntry))
	}

	return actions, nil
}

var initCmd = &cobra.Command{
	Use:          "init",
	Short:        "Scaffold PROMPT.md, requirements.md, and " + config.FileName,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		actions, err := runInit(".", force)
		for _, a := range actions {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return err
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing scaffold files")
}
