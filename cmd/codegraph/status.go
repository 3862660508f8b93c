package main

import (
	"fmt"

	"codegraph/internal/errors"
	"codegraph/internal/storage"
	"codegraph/internal/version"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show graph database status",
	Long:  "Summarizes the stored graph: files, entities, and relation resolution counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := storage.Open(cfg.RepoRoot, cfg.DBPath, logger)
	if err != nil {
		return errors.New(errors.StorageError, "failed to open graph database", err)
	}
	defer db.Close()

	files, err := storage.NewFileRepository(db).ListAll()
	if err != nil {
		return errors.New(errors.StorageError, "failed to list files", err)
	}

	var entityCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&entityCount); err != nil {
		return errors.New(errors.StorageError, "failed to count entities", err)
	}

	verified, lazy, unresolved, err := storage.NewRelationRepository(db).CountByStatus()
	if err != nil {
		return errors.New(errors.StorageError, "failed to count relations", err)
	}

	fmt.Printf("codegraph %s\n\n", version.Version)
	fmt.Printf("database:  %s\n", db.Path())
	fmt.Printf("files:     %d\n", len(files))
	fmt.Printf("entities:  %d\n", entityCount)
	fmt.Printf("relations: %d\n", verified+lazy+unresolved)
	fmt.Printf("  verified:   %d\n", verified)
	fmt.Printf("  lazy:       %d\n", lazy)
	fmt.Printf("  unresolved: %d\n", unresolved)

	if cfg.Semantic.Enabled {
		fmt.Printf("\nsemantic server: %s (%s)\n", cfg.Semantic.Command, cfg.Semantic.LanguageID)
	} else {
		fmt.Println("\nsemantic server: disabled")
	}
	return nil
}
