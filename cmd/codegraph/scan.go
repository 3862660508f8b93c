package main

import (
	"fmt"
	"io/fs"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"codegraph/internal/config"
	"codegraph/internal/errors"
	"codegraph/internal/extract"
	"codegraph/internal/lsp"
	"codegraph/internal/resolve"
	"codegraph/internal/storage"

	"github.com/spf13/cobra"
)

var (
	scanNoSemantic bool
	scanWorkers    int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the repository and build the dependency graph",
	Long: `Runs the two-pass scan: extracts entities and raw relations from every
source file, then resolves references semantically where a language server
is available and by name matching otherwise.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanNoSemantic, "no-semantic", false, "Skip the semantic pass, lazy links only")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Semantic resolution workers (default: from config)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	paths, err := collectFiles(cfg)
	if err != nil {
		return errors.New(errors.InternalError, "failed to collect source files", err)
	}
	if len(paths) == 0 {
		fmt.Println("No source files found.")
		return nil
	}

	db, err := storage.Open(cfg.RepoRoot, cfg.DBPath, logger)
	if err != nil {
		return errors.New(errors.StorageError, "failed to open graph database", err)
	}
	defer db.Close()

	var client resolve.SemanticClient
	if cfg.Semantic.Enabled && !scanNoSemantic {
		client = lsp.NewClient(lsp.Options{
			WorkspaceRoot:  cfg.RepoRoot,
			LanguageID:     cfg.Semantic.LanguageID,
			RequestTimeout: time.Duration(cfg.Semantic.RequestTimeoutMs) * time.Millisecond,
			StartTimeout:   time.Duration(cfg.Semantic.StartTimeoutMs) * time.Millisecond,
			MaxMalformed:   cfg.Resolver.MaxMalformed,
			Logger:         logger.WithComponent("semantic"),
			Spawn: func() (lsp.Transport, error) {
				return lsp.SpawnProcess(cfg.Semantic.Command, cfg.Semantic.Args, cfg.RepoRoot)
			},
		})
	}

	workers := cfg.Resolver.Workers
	if scanWorkers > 0 {
		workers = scanWorkers
	}

	orchestrator := resolve.NewOrchestrator(resolve.OrchestratorOptions{
		DB:        db,
		Extractor: extract.NewPythonExtractor(),
		Client:    client,
		Logger:    logger.WithComponent("resolver"),
		Workers:   workers,
		Hover:     cfg.Resolver.HoverEnabled,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting scan", map[string]interface{}{
		"files":   len(paths),
		"workers": workers,
	})

	stats, err := orchestrator.RunScan(ctx, paths)
	if err != nil {
		return errors.New(errors.InternalError, "scan failed", err)
	}

	fmt.Printf("Scanned %d files (%d unchanged)\n", stats.FilesScanned+stats.FilesSkipped, stats.FilesSkipped)
	fmt.Printf("  entities:  %d\n", stats.Entities)
	fmt.Printf("  relations: %d\n", stats.Relations)
	if stats.SemanticAvailable {
		fmt.Printf("  verified:  %d\n", stats.Verified)
	} else {
		fmt.Println("  semantic layer unavailable, lazy links only")
	}
	fmt.Printf("  lazy:      %d\n", stats.LazyResolved)
	fmt.Printf("  ambiguous: %d\n", stats.Ambiguous)
	fmt.Printf("  external:  %d\n", stats.External)
	return nil
}

// collectFiles walks the repository gathering files that match the include
// patterns, skipping ignored directories.
func collectFiles(cfg *config.Config) ([]string, error) {
	ignored := make(map[string]bool, len(cfg.Scan.Ignore))
	for _, name := range cfg.Scan.Ignore {
		ignored[name] = true
	}

	var paths []string
	err := filepath.WalkDir(cfg.RepoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if path == cfg.RepoRoot {
				return nil
			}
			name := d.Name()
			if ignored[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		for _, pattern := range cfg.Scan.Include {
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
