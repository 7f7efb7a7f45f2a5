package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/gradebridge-backend/internal/app"
	"github.com/yungbote/gradebridge-backend/internal/platform/ctxutil"
)

var rootCmd = &cobra.Command{
	Use:           "reconcilectl",
	Short:         "Operate the gradebook reconciliation engine",
	Long:          "reconcilectl imports gradebook batches, runs sweeper passes, seeds the class hierarchy and works the approval queue against the configured database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to a SQLite database (sets DB_DRIVER=sqlite and SQLITE_PATH)")
	rootCmd.PersistentFlags().String("hierarchy", "", "Hierarchy seed file (overrides HIERARCHY_SEED_FILE)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(enforceCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(watchCmd)
}

// openApp applies the persistent flags to the environment and builds the app. Callers must Close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		_ = os.Setenv("DB_DRIVER", "sqlite")
		_ = os.Setenv("SQLITE_PATH", p)
	}
	if h, _ := cmd.Flags().GetString("hierarchy"); h != "" {
		_ = os.Setenv("HIERARCHY_SEED_FILE", h)
	}
	return app.New(commandContext(cmd))
}

func commandContext(cmd *cobra.Command) context.Context {
	return ctxutil.Default(cmd.Context())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
