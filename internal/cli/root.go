// Package cli defines the devloop command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "devloop",
	Short: "devloop — a self-correcting agentic dev pipeline",
	Long: `devloop drives the Claude Code CLI through a bounded self-correction
loop: implement, run quality gates, cross-check with triangular
verification, and feed failures back as a corrective prompt until the
work converges or the iteration budget runs out.

Run artifacts (execution log, feedback, metrics) live under .devloop/.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(historyCmd)
}
