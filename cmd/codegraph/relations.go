package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"codegraph/internal/errors"
	"codegraph/internal/storage"

	"github.com/spf13/cobra"
)

var (
	relationsStatus string
	relationsFormat string
)

var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "List dependency relations",
	Long:  "Lists the stored relations, filterable by resolution status",
	RunE:  runRelations,
}

func init() {
	relationsCmd.Flags().StringVar(&relationsStatus, "status", "all", "Filter: all, verified, lazy, unresolved")
	relationsCmd.Flags().StringVarP(&relationsFormat, "format", "o", "table", "Output format: table, json, yaml")
	rootCmd.AddCommand(relationsCmd)
}

// relationRow is the display form of one relation
type relationRow struct {
	From       string  `json:"from" yaml:"from"`
	FromFile   string  `json:"from_file" yaml:"from_file"`
	To         string  `json:"to" yaml:"to"`
	TargetFile *string `json:"target_file,omitempty" yaml:"target_file,omitempty"`
	RelType    string  `json:"rel_type" yaml:"rel_type"`
	Status     string  `json:"status" yaml:"status"`
}

func runRelations(cmd *cobra.Command, args []string) error {
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

	var verifiedFilter *bool
	switch relationsStatus {
	case "all":
	case "verified":
		v := true
		verifiedFilter = &v
	case "lazy", "unresolved":
		v := false
		verifiedFilter = &v
	default:
		return fmt.Errorf("unknown status %q (expected all, verified, lazy, or unresolved)", relationsStatus)
	}

	rels, err := storage.NewRelationRepository(db).ListByVerified(verifiedFilter)
	if err != nil {
		return errors.New(errors.StorageError, "failed to list relations", err)
	}

	rows := make([]relationRow, 0, len(rels))
	for _, rel := range rels {
		status := relationStatus(rel)
		if relationsStatus == "lazy" && status != "lazy" {
			continue
		}
		if relationsStatus == "unresolved" && status != "unresolved" {
			continue
		}
		rows = append(rows, relationRow{
			From:       rel.FromName,
			FromFile:   rel.FromFile,
			To:         rel.ToName,
			TargetFile: rel.TargetFile,
			RelType:    rel.RelType,
			Status:     status,
		})
	}

	switch relationsFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(rows)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FROM\tTO\tTYPE\tSTATUS\tFILE")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.From, row.To, row.RelType, row.Status, row.FromFile)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q (expected table, json, or yaml)", relationsFormat)
	}
}

func relationStatus(rel *storage.ResolvedRelation) string {
	switch {
	case rel.IsVerified:
		return "verified"
	case rel.ToID != nil:
		return "lazy"
	default:
		return "unresolved"
	}
}
