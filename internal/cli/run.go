package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/devloop/internal/config"
	"github.com/lucasnoah/devloop/internal/db"
	"github.com/lucasnoah/devloop/internal/detect"
	"github.com/lucasnoah/devloop/internal/gates"
	"github.com/lucasnoah/devloop/internal/logging"
	"github.com/lucasnoah/devloop/internal/pipeline"
	"github.com/lucasnoah/devloop/internal/runner"
)

// ErrNotConverged is returned by run when the loop exhausts its
// iteration budget. Translates to exit code 1.
var ErrNotConverged = errors.New("pipeline did not converge")

var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Run the self-correction loop until convergence",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyRunFlags(cmd, &cfg)

		if err := requireReadableFile(cfg.PromptFile, "prompt"); err != nil {
			return err
		}
		if err := requireReadableFile(cfg.RequirementsFile, "requirements"); err != nil {
			return err
		}

		store, err := pipeline.NewStore(cfg.OutputDir)
		if err != nil {
			return err
		}

		log, err := logging.New(logging.Options{
			LogFile:  store.RunLogPath(),
			JSONMode: cfg.LogFormat == "json",
		})
		if err != nil {
			return err
		}
		defer log.Sync()

		var history pipeline.HistorySink
		if cfg.DatabaseURL != "" {
			hs, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				log.Warn("run history disabled: " + err.Error())
			} else {
				defer hs.Close()
				if err := hs.Migrate(cmd.Context()); err != nil {
					log.Warn("run history disabled: " + err.Error())
				} else {
					history = hs
				}
			}
		}

		project := detect.All(".", cfg.BaseBranch)
		orch := pipeline.New(store, log, runner.NewCLIRunner(log), gates.NewDirProvider(cfg.PluginDir), history)

		converged, err := orch.Run(context.Background(), pipeline.Options{
			PromptFile:       cfg.PromptFile,
			RequirementsFile: cfg.RequirementsFile,
			MaxIterations:    cfg.MaxIterations,
			Timeout:          cfg.PerCallTimeout(),
			MaxRetries:       cfg.MaxRetries,
			WebhookURL:       cfg.WebhookURL,
			ParallelGates:    cfg.ParallelGates,
			Project:          project,
		})
		if err != nil {
			return err
		}
		if !converged {
			return ErrNotConverged
		}
		return nil
	},
}

// applyRunFlags layers explicitly-set flags over the resolved config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("prompt") {
		cfg.PromptFile, _ = f.GetString("prompt")
	}
	if f.Changed("requirements") {
		cfg.RequirementsFile, _ = f.GetString("requirements")
	}
	if f.Changed("output-dir") {
		cfg.OutputDir, _ = f.GetString("output-dir")
	}
	if f.Changed("max-iterations") {
		cfg.MaxIterations, _ = f.GetInt("max-iterations")
	}
	if f.Changed("timeout") {
		cfg.TimeoutSeconds, _ = f.GetInt("timeout")
	}
	if f.Changed("max-retries") {
		cfg.MaxRetries, _ = f.GetInt("max-retries")
	}
	if f.Changed("base-branch") {
		cfg.BaseBranch, _ = f.GetString("base-branch")
	}
	if f.Changed("webhook-url") {
		cfg.WebhookURL, _ = f.GetString("webhook-url")
	}
	if f.Changed("parallel-gates") {
		cfg.ParallelGates, _ = f.GetBool("parallel-gates")
	}
	if f.Changed("plugin-dir") {
		cfg.PluginDir, _ = f.GetString("plugin-dir")
	}
}

// requireReadableFile validates that a required input file exists and
// is not empty.
func requireReadableFile(path, kind string) error {
	if path == "" {
		return fmt.Errorf("no %s file configured (use --%s or %s)", kind, kind, config.FileName)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s file %s: %w", kind, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s file %s is a directory", kind, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s file %s is empty", kind, path)
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.String("prompt", "PROMPT.md", "Task prompt file fed to the implementation agent")
	f.String("requirements", "requirements.md", "Requirements file used by verification")
	f.String("output-dir", ".devloop", "Directory for run artifacts")
	f.Int("max-iterations", 5, "Iteration budget before giving up")
	f.Int("timeout", 300, "Per-call timeout in seconds (agent calls and gate commands)")
	f.Int("max-retries", 2, "Agent invocation attempts before aborting")
	f.String("base-branch", "main", "Base branch for changed-file detection")
	f.String("webhook-url", "", "URL to POST a completion notification to")
	f.Bool("parallel-gates", false, "Run quality gates concurrently")
	f.String("plugin-dir", "", "Directory of .sh/.py plugin gates")
	f.String("config", "", "Explicit config file (default: ./"+config.FileName+" then ~/"+config.FileName+")")
}
