package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// escapedDollar temporarily stands in for "$$" during substitution.
const escapedDollar = "\x00ESCAPED_DOLLAR\x00"

// Load reads, parses, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// LoadFromReader is Load for an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse substitutes environment variables in data, decodes it, applies
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	content := SubstituteEnvVars(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SubstituteEnvVars replaces ${VAR} and ${VAR:-default} with environment
// values. "$$" escapes a literal dollar sign.
func SubstituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", escapedDollar)

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		if value, exists := os.LookupEnv(submatches[1]); exists {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, escapedDollar, "$")
}
