package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Replay a card's review log and compare it with the stored state",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		card, _ := cmd.Flags().GetString("card")

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		rep, err := d.pipeline.Audit(ctx, student, card)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
		if !rep.Match {
			return fmt.Errorf("stored state of %s/%s does not match its review log", student, card)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().String("student", "", "Student id")
	auditCmd.Flags().String("card", "", "Card id")
	_ = auditCmd.MarkFlagRequired("student")
	_ = auditCmd.MarkFlagRequired("card")
}
