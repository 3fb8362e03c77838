package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds optional settings loaded from a YAML file. Flags take
// precedence over file values.
type Config struct {
	Dir               string `yaml:"dir"`
	RevsLimit         int    `yaml:"revs_limit"`
	DeterministicRevs bool   `yaml:"deterministic_revs"`
	AutoCompaction    bool   `yaml:"auto_compaction"`
}

// LoadConfig reads a config file. An empty path means no config file
// and yields zero-value defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.RevsLimit < 0 {
		return nil, fmt.Errorf("revs_limit must not be negative, got %d", cfg.RevsLimit)
	}
	return &cfg, nil
}
