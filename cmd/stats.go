package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/mnemo/internal/session"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a student's review statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		st, err := d.stats.Summarize(ctx, student, session.LastDays(time.Now(), days, cfg.Location()))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return printJSON(out, st)
		}

		fmt.Fprintf(out, "Student %s, %s to %s\n", st.StudentID, st.From, st.To)
		fmt.Fprintln(out, strings.Repeat("─", 60))
		fmt.Fprintf(out, "Reviews          %d (%d correct, %d incorrect)\n", st.Reviews, st.Correct, st.Incorrect)
		fmt.Fprintf(out, "Accuracy         %.0f%%\n", st.Accuracy*100)
		fmt.Fprintf(out, "Time on task     %s\n", (time.Duration(st.TimeOnTaskMs) * time.Millisecond).Round(time.Second))
		fmt.Fprintf(out, "Cards studied    %d\n", st.CardsStudied)
		fmt.Fprintf(out, "Mastery gains    %d\n", st.MasteryGains)
		fmt.Fprintf(out, "Day streak       %d (longest %d, %d active days)\n", st.CurrentDayStreak, st.LongestDayStreak, st.ActiveDays)
		fmt.Fprintf(out, "Correct streak   %d (best %d, next milestone %d)\n", st.CurrentCorrectStreak, st.BestCorrectStreak, st.NextStreakMilestone)

		if len(st.Days) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-10s  %7s  %7s  %9s\n", "Day", "Reviews", "Correct", "Time")
			for _, day := range st.Days {
				fmt.Fprintf(out, "%-10s  %7d  %7d  %9s\n", day.Day, day.Reviews, day.Correct,
					(time.Duration(day.TimeOnTaskMs) * time.Millisecond).Round(time.Second))
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("student", "", "Student id")
	statsCmd.Flags().Int("days", 7, "Number of days up to today to summarize")
	statsCmd.Flags().Bool("json", false, "Print JSON")
	_ = statsCmd.MarkFlagRequired("student")
}
