package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Work the fuzzy-match approval queue",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Services.Approval.List(dbctx.Context{Ctx: commandContext(cmd)}, status, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd, rows)
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Apply a queued record to the student it matched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Services.Approval.Approve(commandContext(cmd), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var approvalsDenyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Discard a queued record, or apply it to a new student with --create-new",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		createNew, _ := cmd.Flags().GetBool("create-new")
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Services.Approval.Deny(commandContext(cmd), id, createNew)
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "denied")
			return nil
		}
		return printJSON(cmd, res)
	},
}

func init() {
	approvalsListCmd.Flags().String("status", "pending", "pending, approved or denied")
	approvalsListCmd.Flags().Int("limit", 100, "Maximum rows")
	approvalsDenyCmd.Flags().Bool("create-new", false, "Create a new student from the imported label and apply the record")

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsDenyCmd)
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid approval id %q: %w", raw, err)
	}
	return id, nil
}
