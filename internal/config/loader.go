package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the pipeline's own settings. Project-detection
// overrides (LINT_CMD, TEST_CMD, ...) are unprefixed and handled by the
// detect package.
const envPrefix = "DEVLOOP_"

// FileName is the standalone config file searched for in the working
// directory and the user's home directory.
const FileName = ".devloop.yaml"

// Load resolves the configuration. path, when non-empty, names an
// explicit config file; otherwise ./.devloop.yaml then ~/.devloop.yaml
// is used if present. Precedence: file > environment > defaults.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	// Environment layer (lower precedence than the file).
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env config: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found in the standard
// locations, or empty.
func findConfigFile() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, FileName))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
