package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/gradebridge-backend/internal/reconcile/sweeper"
)

const cliTrigger = "cli"

var sweepCmd = &cobra.Command{
	Use:       "sweep <pass>",
	Short:     "Run a sweeper pass",
	Long:      "Runs one of class-dedup, curriculum-dedup, orphan-purge, student-dedup, curriculum-enforce or all.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{sweeper.PassClassDedup, sweeper.PassCurriculumDedup, sweeper.PassOrphanPurge, sweeper.PassStudentDedup, sweeper.PassCurriculumEnforce, sweeper.PassAll},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.Services.Sweep.Run(commandContext(cmd), args[0], cliTrigger)
		if err != nil {
			return err
		}
		return printJSON(cmd, rep)
	},
}

var enforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Enforce a canonical curriculum from a hierarchy YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read curriculum: %w", err)
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.Services.Sweep.Enforce(commandContext(cmd), raw, cliTrigger)
		if err != nil {
			return err
		}
		return printJSON(cmd, rep)
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-project every snapshot into enrollments and assignment records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Services.Projection.RebuildAll(commandContext(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	enforceCmd.Flags().String("file", "", "Hierarchy YAML with curriculum lists")
	_ = enforceCmd.MarkFlagRequired("file")
}
