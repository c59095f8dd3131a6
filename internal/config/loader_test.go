package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "PROMPT.md", cfg.PromptFile)
	assert.Equal(t, "requirements.md", cfg.RequirementsFile)
	assert.Equal(t, ".devloop", cfg.OutputDir)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "main", cfg.BaseBranch)
	assert.Equal(t, "5m0s", cfg.PerCallTimeout().String())
}

func TestLoadWithoutSources(t *testing.T) {
	chtmp(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	chtmp(t)
	t.Setenv("DEVLOOP_MAX_ITERATIONS", "9")
	t.Setenv("DEVLOOP_PROMPT_FILE", "TASK.md")
	t.Setenv("DEVLOOP_PARALLEL_GATES", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxIterations)
	assert.Equal(t, "TASK.md", cfg.PromptFile)
	assert.True(t, cfg.ParallelGates)
	// Untouched keys keep their defaults.
	assert.Equal(t, 300, cfg.TimeoutSeconds)
}

func TestLoadFileOverridesEnv(t *testing.T) {
	dir := chtmp(t)
	t.Setenv("DEVLOOP_MAX_ITERATIONS", "9")

	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: 7\nwebhook_url: https://example.com/hook\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations, "file value wins over environment")
	assert.Equal(t, "https://example.com/hook", cfg.WebhookURL)
}

func TestLoadExplicitPath(t *testing.T) {
	chtmp(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 4\ndatabase_url: postgres://localhost/devloop\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, "postgres://localhost/devloop", cfg.DatabaseURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chtmp(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chtmp(t)
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: [not an int\n"), 0o644))

	_, err := Load("")
	assert.Error(t, err)
}

// chtmp runs the test from an empty directory so no real .devloop.yaml
// can leak in, and points HOME away from the user's.
func chtmp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	t.Setenv("HOME", t.TempDir())
	return dir
}
