package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"codegraph/internal/errors"
	"codegraph/internal/export"
	"codegraph/internal/storage"

	"github.com/spf13/cobra"
)

var (
	exportOutput       string
	exportVerifiedOnly bool
	exportCompress     bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the dependency graph as GraphML",
	Long: `Renders the stored graph as a GraphML document: modules and classes as
nested groups, functions and methods as leaf nodes, relations as styled
edges (solid for verified links, dashed for lazy ones).`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "O", "", "Output path (default: .codegraph/graph.graphml)")
	exportCmd.Flags().BoolVar(&exportVerifiedOnly, "verified-only", false, "Include only semantically verified relations")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "zstd-compress the output")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	output := exportOutput
	if output == "" {
		output = filepath.Join(cfg.RepoRoot, ".codegraph", "graph.graphml")
	}

	exporter := export.NewGraphMLExporter(db, logger)
	opts := export.Options{
		VerifiedOnly: exportVerifiedOnly,
		Compress:     exportCompress,
	}
	if err := exporter.WriteFile(output, opts); err != nil {
		return errors.New(errors.InternalError, "export failed", err)
	}

	if exportCompress && !strings.HasSuffix(output, ".zst") {
		output += ".zst"
	}
	fmt.Printf("Exported graph to %s\n", output)
	return nil
}
