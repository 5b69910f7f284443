package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	ContextSize  int    `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads      int    `json:"threads" yaml:"threads" toml:"threads"`
	Seed         int64  `json:"seed" yaml:"seed" toml:"seed"`
	MaxTokens    int    `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	// LibPath is the directory holding the llama.cpp shared libraries.
	LibPath  string `json:"lib_path" yaml:"lib_path" toml:"lib_path"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// Backend selects the compute backend. Only "cpu" is accepted for now.
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values no default can repair.
func (c Config) Validate() error {
	if c.Backend != "" && c.Backend != "cpu" {
		return fmt.Errorf("unsupported backend: %q (only \"cpu\")", c.Backend)
	}
	if c.ContextSize < 0 {
		return fmt.Errorf("context_size must not be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}
