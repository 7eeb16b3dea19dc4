package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all learner data for a student",
	Long:  "Delete a student's sessions, memory and mastery states, review logs and daily activity. Catalog content is kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to delete data for %s without --yes", student)
		}

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		n, err := d.store.DeleteStudent(ctx, student)
		if err != nil {
			return err
		}
		d.log.Info("student reset", zap.String("student_id", student), zap.Int64("rows", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d rows for %s.\n", n, student)
		return nil
	},
}

func init() {
	resetCmd.Flags().String("student", "", "Student id")
	resetCmd.Flags().Bool("yes", false, "Confirm deletion")
	_ = resetCmd.MarkFlagRequired("student")
}
