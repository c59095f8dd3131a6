package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/devloop/internal/config"
	"github.com/lucasnoah/devloop/internal/detect"
	"github.com/lucasnoah/devloop/internal/logging"
	"github.com/lucasnoah/devloop/internal/runner"
	"github.com/lucasnoah/devloop/internal/verify"
)

// ErrVerifyFailed is returned when standalone verification does not
// produce a pass verdict. Translates to exit code 1.
var ErrVerifyFailed = errors.New("triangular verification failed")

var verifyCmd = &cobra.Command{
	Use:          "verify",
	Short:        "Run triangular verification once against the current tree",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if f := cmd.Flags(); f.Changed("requirements") {
			cfg.RequirementsFile, _ = f.GetString("requirements")
		}
		if f := cmd.Flags(); f.Changed("output-dir") {
			cfg.OutputDir, _ = f.GetString("output-dir")
		}

		if err := requireReadableFile(cfg.RequirementsFile, "requirements"); err != nil {
			return err
		}

		log, err := logging.New(logging.Options{JSONMode: cfg.LogFormat == "json"})
		if err != nil {
			return err
		}
		defer log.Sync()

		agent := runner.NewCLIRunner(log)
		if err := agent.Preflight(); err != nil {
			return err
		}

		passed, err := verify.Run(context.Background(), agent, log, verify.Options{
			RequirementsFile: cfg.RequirementsFile,
			OutputDir:        cfg.OutputDir,
			Project:          detect.All(".", cfg.BaseBranch),
			Timeout:          cfg.PerCallTimeout(),
			MaxRetries:       cfg.MaxRetries,
		})
		if err != nil {
			return err
		}
		if !passed {
			return ErrVerifyFailed
		}
		return nil
	},
}

func init() {
	f := verifyCmd.Flags()
	f.String("requirements", "requirements.md", "Requirements file used by verification")
	f.String("output-dir", ".devloop", "Directory for verification artifacts")
	f.String("config", "", "Explicit config file")
}
