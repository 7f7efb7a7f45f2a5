package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the classes a hierarchy file declares",
	Long:  "Creates missing class offerings from a hierarchy YAML file. With --enforce the file's canonical curricula are enforced afterwards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		h, err := hierarchy.Load(path)
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := commandContext(cmd)
		res, err := a.Services.Catalog.Seed(ctx, h)
		if err != nil {
			return err
		}
		out := map[string]any{"seed": res}
		if enforce, _ := cmd.Flags().GetBool("enforce"); enforce && len(h.Canonical()) > 0 {
			rep, err := a.Engine.Sweeper.Enforce(ctx, h.Canonical(), cliTrigger)
			if err != nil {
				return err
			}
			out["enforce"] = rep
		}
		return printJSON(cmd, out)
	},
}

func init() {
	seedCmd.Flags().String("file", "", "Hierarchy YAML file")
	seedCmd.Flags().Bool("enforce", false, "Also run curriculum-enforce for classes that declare a curriculum")
	_ = seedCmd.MarkFlagRequired("file")
}
