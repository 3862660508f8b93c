package main

import (
	"os"

	"codegraph/internal/config"
	"codegraph/internal/logging"
	"codegraph/internal/version"

	"github.com/spf13/cobra"
)

var (
	// repoFlag is the CLI --repo flag value
	repoFlag string
)

var rootCmd = &cobra.Command{
	Use:   "codegraph",
	Short: "codegraph - hybrid dependency resolution engine",
	Long: `codegraph extracts a structural model of a source tree and builds a
cross-file dependency graph. References are resolved by a fast name-based
linker and, where available, verified by a language server child process.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("codegraph version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "Repository root (default: current directory)")
}

// resolveRepoRoot determines the repository root from the CLI flag or the
// working directory
func resolveRepoRoot() (string, error) {
	if repoFlag != "" {
		return repoFlag, nil
	}
	return os.Getwd()
}

// loadConfig resolves the repo root and reads its configuration
func loadConfig() (*config.Config, error) {
	root, err := resolveRepoRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds a logger from the configuration
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.ParseFormat(cfg.Logging.Format),
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
}
