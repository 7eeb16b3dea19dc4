package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage review sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a review session for a student",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		s, err := d.pipeline.StartSession(ctx, student)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.ID)
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit a graded review",
	Long:  "Submit a graded review (1 again, 2 hard, 3 good, 4 easy) and print the updated memory and mastery state as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		sessionID, _ := f.GetString("session")
		itemID, _ := f.GetString("item")
		kind, _ := f.GetString("kind")
		grade, _ := f.GetInt("grade")
		responseMs, _ := f.GetInt64("response-ms")
		at, _ := f.GetString("at")

		req := review.Request{
			SessionID: sessionID,
			ItemID:    itemID,
			Kind:      reviewlog.ItemKind(kind),
			Grade:     spacedrep.Grade(grade),
		}
		if f.Changed("response-ms") {
			req.ResponseTimeMs = &responseMs
		}
		if at != "" {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("%w: --at must be RFC 3339", review.ErrInvalidTimestamp)
			}
			req.ReviewedAt = &t
		}

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		resp, err := d.pipeline.HandleReview(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	sessionStartCmd.Flags().String("student", "", "Student id")
	_ = sessionStartCmd.MarkFlagRequired("student")
	sessionCmd.AddCommand(sessionStartCmd)

	f := reviewCmd.Flags()
	f.String("session", "", "Session id from 'mnemo session start'")
	f.String("item", "", "Item id")
	f.String("kind", string(reviewlog.KindFlashcard), "Item kind: flashcard or quiz")
	f.Int("grade", 0, "Grade 1-4")
	f.Int64("response-ms", 0, "Response time in milliseconds")
	f.String("at", "", "Review time in RFC 3339 for offline reviews (default now)")
	_ = reviewCmd.MarkFlagRequired("session")
	_ = reviewCmd.MarkFlagRequired("item")
	_ = reviewCmd.MarkFlagRequired("grade")
}
