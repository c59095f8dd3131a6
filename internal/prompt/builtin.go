package prompt

import (
	"fmt"
	"os"
)

const correctiveTemplate = `Read {{prompt_file}} for the full requirements.

Previous iteration ({{prev_iteration}}) failed with this feedback:
---
{{feedback}}
---

Fix the issues described above. Do NOT start from scratch.
Read the existing code first, then make targeted fixes only.
After fixing, verify your changes match the requirements.`

const blindReviewTemplate = `{{#if context_section}}Read the following files for project context:
{{context_section}}

{{/if}}Do NOT read any requirements document ({{requirements_file}}).

The following files were recently changed or created:
{{changed_files}}

For each file:
1. Describe what this code does (behavior and intent, not just structure)
2. List any convention/rule violations found in the project rules
3. List potential issues, edge cases, or bugs

Output your analysis as structured markdown.`

const discrepancyTemplate = `You are Agent C in a triangular verification process.

Read these two documents carefully:
1. {{requirements_file}} (original requirements — the source of truth)
2. {{blind_review_file}} (blind code analysis by another agent)

Do NOT read any code files directly.

Compare them and produce a discrepancy report with these sections:

## Requirements Met
List each requirement confirmed by the blind review, with evidence.

## Requirements Missed
Requirements present in the requirements doc but NOT reflected in the blind review.

## Extra Behavior
Behavior described in the blind review but NOT in the requirements.

## Potential Bugs
Where the blind review contradicts or conflicts with requirements.

## Verdict
If ALL requirements are met and no critical issues found, output exactly on its own line:
{{pass_marker}}

Otherwise, list each issue that must be fixed.`

// noFeedbackPlaceholder stands in when the previous iteration left no
// feedback artifact behind.
const noFeedbackPlaceholder = "No specific feedback available"

// Initial returns the iteration-1 prompt: the prompt file verbatim.
func Initial(promptFile string) (string, error) {
	data, err := os.ReadFile(promptFile)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}

// Corrective builds the prompt for iterations after the first: a
// reference back to the prompt file, the previous iteration's feedback,
// and the instruction to make targeted fixes rather than restart.
func Corrective(promptFile, feedbackFile string, iteration int) (string, error) {
	feedback := noFeedbackPlaceholder
	if data, err := os.ReadFile(feedbackFile); err == nil {
		feedback = string(data)
	}
	return Render(correctiveTemplate, Vars{
		"prompt_file":    promptFile,
		"prev_iteration": fmt.Sprintf("%d", iteration-1),
		"feedback":       feedback,
	})
}

// BlindReview builds the Agent B prompt: changed files and project
// context only, with the requirements document explicitly off-limits.
func BlindReview(requirementsFile, contextSection, changedFiles string) (string, error) {
	return Render(blindReviewTemplate, Vars{
		"requirements_file": requirementsFile,
		"context_section":   contextSection,
		"changed_files":     changedFiles,
	})
}

// Discrepancy builds the Agent C prompt: requirements and the blind
// review only, with the code explicitly off-limits.
func Discrepancy(requirementsFile, blindReviewFile, passMarker string) (string, error) {
	return Render(discrepancyTemplate, Vars{
		"requirements_file": requirementsFile,
		"blind_review_file": blindReviewFile,
		"pass_marker":       passMarker,
	})
}
