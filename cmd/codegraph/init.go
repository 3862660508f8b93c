package main

import (
	"fmt"
	"os"
	"path/filepath"

	"codegraph/internal/config"
	"codegraph/internal/errors"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize codegraph configuration",
	Long:  "Creates a .codegraph/ directory with default configuration in the repository root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Force reinitialization (removes existing .codegraph directory)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := resolveRepoRoot()
	if err != nil {
		return errors.New(errors.InternalError, "failed to resolve repository root", err)
	}

	dir := filepath.Join(root, ".codegraph")
	if _, statErr := os.Stat(dir); statErr == nil {
		if !initForce {
			// Already initialized is success, not an error
			fmt.Println("codegraph already initialized.")
			fmt.Printf("Configuration at: %s\n", filepath.Join(dir, "config.toml"))
			fmt.Println("\nRun 'codegraph init --force' to reinitialize.")
			return nil
		}
		if removeErr := os.RemoveAll(dir); removeErr != nil {
			return errors.New(errors.InternalError, "failed to remove existing .codegraph directory", removeErr)
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(root); err != nil {
		return errors.New(errors.InternalError, "failed to write configuration", err)
	}

	fmt.Println("codegraph initialized.")
	fmt.Printf("Configuration at: %s\n", filepath.Join(dir, "config.toml"))
	fmt.Println("\nNext: run 'codegraph scan' to build the dependency graph.")
	return nil
}
