// Package config loads the engine configuration from .codegraph/config.toml.
package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config represents the complete codegraph configuration
type Config struct {
	Version  int    `toml:"version" mapstructure:"version"`
	RepoRoot string `toml:"repoRoot" mapstructure:"repoRoot"`
	DBPath   string `toml:"dbPath" mapstructure:"dbPath"`

	Semantic SemanticConfig `toml:"semantic" mapstructure:"semantic"`
	Resolver ResolverConfig `toml:"resolver" mapstructure:"resolver"`
	Scan     ScanConfig     `toml:"scan" mapstructure:"scan"`
	Logging  LoggingConfig  `toml:"logging" mapstructure:"logging"`
}

// SemanticConfig configures the language server child process
type SemanticConfig struct {
	Enabled          bool     `toml:"enabled" mapstructure:"enabled"`
	Command          string   `toml:"command" mapstructure:"command"`
	Args             []string `toml:"args" mapstructure:"args"`
	LanguageID       string   `toml:"languageId" mapstructure:"languageId"`
	RequestTimeoutMs int      `toml:"requestTimeoutMs" mapstructure:"requestTimeoutMs"`
	StartTimeoutMs   int      `toml:"startTimeoutMs" mapstructure:"startTimeoutMs"`
}

// ResolverConfig configures the resolution orchestrator
type ResolverConfig struct {
	Workers      int  `toml:"workers" mapstructure:"workers"`
	HoverEnabled bool `toml:"hoverEnabled" mapstructure:"hoverEnabled"`
	LazyFallback bool `toml:"lazyFallback" mapstructure:"lazyFallback"`
	MaxMalformed int  `toml:"maxMalformed" mapstructure:"maxMalformed"`
}

// ScanConfig configures the syntax pass
type ScanConfig struct {
	Include []string `toml:"include" mapstructure:"include"`
	Ignore  []string `toml:"ignore" mapstructure:"ignore"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Format string `toml:"format" mapstructure:"format"`
	Level  string `toml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		DBPath:   "",
		Semantic: SemanticConfig{
			Enabled:          true,
			Command:          "pyright-langserver",
			Args:             []string{"--stdio"},
			LanguageID:       "python",
			RequestTimeoutMs: 5000,
			StartTimeoutMs:   15000,
		},
		Resolver: ResolverConfig{
			Workers:      4,
			HoverEnabled: true,
			LazyFallback: true,
			MaxMalformed: 5,
		},
		Scan: ScanConfig{
			Include: []string{"*.py"},
			Ignore:  []string{"__pycache__", ".git", ".venv", "venv", "node_modules", ".tox"},
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads configuration from .codegraph/config.toml under repoRoot.
// A missing config file yields the defaults, not an error.
func Load(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("repoRoot", repoRoot)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(filepath.Join(repoRoot, ".codegraph"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.RepoRoot = repoRoot
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.RepoRoot == "" || cfg.RepoRoot == "." {
		cfg.RepoRoot = repoRoot
	}

	return cfg, nil
}

// Save writes the configuration to .codegraph/config.toml
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".codegraph")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.toml"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Resolver.Workers < 1 {
		return &ConfigError{Field: "resolver.workers", Message: "must be at least 1"}
	}
	if c.Semantic.Enabled && c.Semantic.Command == "" {
		return &ConfigError{Field: "semantic.command", Message: "required when semantic is enabled"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
