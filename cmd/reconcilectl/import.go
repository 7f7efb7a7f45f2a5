package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/gradebridge-backend/internal/reconcile/activity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Reconcile a JSON import batch",
	Long:  "Reads a batch ({mode, match_mode, records}) or a bare array of records and prints the batch result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read batch: %w", err)
		}
		batch, err := decodeBatch(raw)
		if err != nil {
			return err
		}
		if m, _ := cmd.Flags().GetString("mode"); m != "" {
			batch.Mode = importer.Mode(m)
		}
		if m, _ := cmd.Flags().GetString("match-mode"); m != "" {
			batch.MatchMode = activity.Mode(m)
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Services.Import.Import(commandContext(cmd), batch)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	importCmd.Flags().String("file", "", "Batch JSON file")
	importCmd.Flags().String("mode", "", "import or audit (overrides the file)")
	importCmd.Flags().String("match-mode", "", "exact_title or structured_code (overrides the file)")
	_ = importCmd.MarkFlagRequired("file")
}

func decodeBatch(raw []byte) (importer.Batch, error) {
	var batch importer.Batch
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}
	var records []importer.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return batch, fmt.Errorf("decode batch: %w", err)
	}
	batch.Records = records
	return batch, nil
}
