// Package config resolves pipeline settings from defaults, DEVLOOP_*
// environment variables, and the .devloop.yaml config file, in that
// order of increasing precedence. CLI flags are applied on top by the
// caller.
package config

import "time"

// Config holds the resolved pipeline settings.
type Config struct {
	PromptFile       string `koanf:"prompt_file" yaml:"prompt_file"`
	RequirementsFile string `koanf:"requirements_file" yaml:"requirements_file"`
	OutputDir        string `koanf:"output_dir" yaml:"output_dir"`
	MaxIterations    int    `koanf:"max_iterations" yaml:"max_iterations"`
	TimeoutSeconds   int    `koanf:"timeout" yaml:"timeout"`
	MaxRetries       int    `koanf:"max_retries" yaml:"max_retries"`
	BaseBranch       string `koanf:"base_branch" yaml:"base_branch"`
	WebhookURL       string `koanf:"webhook_url" yaml:"webhook_url"`
	ParallelGates    bool   `koanf:"parallel_gates" yaml:"parallel_gates"`
	PluginDir        string `koanf:"plugin_dir" yaml:"plugin_dir"`
	DatabaseURL      string `koanf:"database_url" yaml:"database_url"`
	LogFormat        string `koanf:"log_format" yaml:"log_format"`
}

// Default returns the built-in settings: 5 iterations, 300s per agent
// call, 2 retries, base branch main, output under .devloop/.
func Default() Config {
	return Config{
		PromptFile:       "PROMPT.md",
		RequirementsFile: "requirements.md",

		OutputDir:      ".devloop",
		MaxIterations:  5,
		TimeoutSeconds: 300,
		MaxRetries:     2,
		BaseBranch:     "main",
	}
}

// PerCallTimeout is the timeout applied to each agent call and each
// gate command.
func (c Config) PerCallTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
