package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if !cfg.Semantic.Enabled {
		t.Error("Semantic.Enabled should default to true")
	}
	if cfg.Semantic.Command != "pyright-langserver" {
		t.Errorf("Semantic.Command = %q, want 'pyright-langserver'", cfg.Semantic.Command)
	}
	if len(cfg.Semantic.Args) != 1 || cfg.Semantic.Args[0] != "--stdio" {
		t.Errorf("Semantic.Args = %v, want ['--stdio']", cfg.Semantic.Args)
	}
	if cfg.Semantic.RequestTimeoutMs != 5000 {
		t.Errorf("Semantic.RequestTimeoutMs = %d, want 5000", cfg.Semantic.RequestTimeoutMs)
	}
	if cfg.Resolver.Workers != 4 {
		t.Errorf("Resolver.Workers = %d, want 4", cfg.Resolver.Workers)
	}
	if !cfg.Resolver.LazyFallback {
		t.Error("Resolver.LazyFallback should default to true")
	}
	if len(cfg.Scan.Include) == 0 {
		t.Error("Scan.Include should not be empty")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want 'info'", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load with no config file should not error: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want default 1", cfg.Version)
	}
	if cfg.RepoRoot != dir {
		t.Errorf("RepoRoot = %q, want %q", cfg.RepoRoot, dir)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.RepoRoot = dir
	cfg.Semantic.Command = "pylsp"
	cfg.Semantic.Args = nil
	cfg.Resolver.Workers = 8
	cfg.Scan.Include = []string{"*.py", "*.pyi"}

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// File lands in the .codegraph directory
	path := filepath.Join(dir, ".codegraph", "config.toml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Semantic.Command != "pylsp" {
		t.Errorf("Semantic.Command = %q, want 'pylsp'", loaded.Semantic.Command)
	}
	if loaded.Resolver.Workers != 8 {
		t.Errorf("Resolver.Workers = %d, want 8", loaded.Resolver.Workers)
	}
	if len(loaded.Scan.Include) != 2 {
		t.Errorf("Scan.Include = %v, want two patterns", loaded.Scan.Include)
	}
}

func TestLoadPartialFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".codegraph")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Only override the worker count; everything else keeps defaults.
	content := "version = 1\n\n[resolver]\nworkers = 2\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Resolver.Workers != 2 {
		t.Errorf("Resolver.Workers = %d, want 2", cfg.Resolver.Workers)
	}
	if cfg.Semantic.Command != "pyright-langserver" {
		t.Errorf("Semantic.Command = %q, want default", cfg.Semantic.Command)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".codegraph")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte("[[[not toml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load should fail on malformed TOML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "bad version",
			mutate:    func(c *Config) { c.Version = 99 },
			wantError: "version",
		},
		{
			name:      "zero workers",
			mutate:    func(c *Config) { c.Resolver.Workers = 0 },
			wantError: "resolver.workers",
		},
		{
			name:      "semantic enabled without command",
			mutate:    func(c *Config) { c.Semantic.Command = "" },
			wantError: "semantic.command",
		},
		{
			name: "semantic disabled without command is fine",
			mutate: func(c *Config) {
				c.Semantic.Enabled = false
				c.Semantic.Command = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantError == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Validate() = %q, want to mention %q", err.Error(), tt.wantError)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "resolver.workers", Message: "must be at least 1"}

	msg := err.Error()
	if !strings.Contains(msg, "resolver.workers") {
		t.Errorf("Error() = %q, want to contain the field name", msg)
	}
	if !strings.Contains(msg, "must be at least 1") {
		t.Errorf("Error() = %q, want to contain the message", msg)
	}
}
