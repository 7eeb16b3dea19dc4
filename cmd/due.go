package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/mnemo/internal/due"
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List the cards a student should review now",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		now := time.Now()
		items, err := due.Collect(d.queue.ListDue(ctx, student, now, limit))
		if err != nil {
			return fmt.Errorf("list due items: %w", err)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			if items == nil {
				items = []due.Item{}
			}
			return printJSON(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "Nothing due.")
			return nil
		}

		fmt.Fprintf(out, "%-24s  %-9s  %-10s  %-16s  %7s  %5s  %s\n",
			"Card", "Kind", "State", "Due", "Overdue", "R", "Front")
		fmt.Fprintln(out, strings.Repeat("─", 100))
		for _, it := range items {
			fmt.Fprintf(out, "%-24s  %-9s  %-10s  %-16s  %6.1fd  %5.2f  %s\n",
				truncate(it.CardID, 24), it.Kind, it.Lifecycle,
				it.DueAt.Local().Format("2006-01-02 15:04"),
				it.OverdueDays, it.Retrievability, truncate(it.Front, 40))
		}
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	dueCmd.Flags().String("student", "", "Student id")
	dueCmd.Flags().Int("limit", 20, "Maximum number of cards")
	dueCmd.Flags().Bool("json", false, "Print JSON")
	_ = dueCmd.MarkFlagRequired("student")
}
