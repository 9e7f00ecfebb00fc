package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/repo"
)

var importCmd = &cobra.Command{
	Use:   "import [file.json]",
	Short: "Load credential records into the document store",
	Long: `Reads a JSON array of records ({id, login, password, url, domain,
source, timestamp, metadata}) and upserts them into the SQLite document
store used when the index is unavailable.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var records []models.CredentialRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}

	store, err := repo.OpenDocumentStore(cfg.Documents.Path, logger)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()

	if err := store.SaveRecords(cmd.Context(), records); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	logger.Info("records imported", slog.Int("count", len(records)), slog.String("path", cfg.Documents.Path))
	cmd.Printf("imported %d records\n", len(records))
	return nil
}
