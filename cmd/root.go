package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abhisek/mnemo/internal/config"
)

var (
	v   = viper.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "mnemo",
	Short:        "Spaced repetition and mastery tracking service",
	Long:         "mnemo schedules flashcard reviews with a memory model and tracks knowledge-unit mastery with Bayesian Knowledge Tracing.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(v, path)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file (default ./mnemo.yaml or $XDG_CONFIG_HOME/mnemo/mnemo.yaml)")
	pf.String("db", "", "Database DSN or SQLite file path (overrides MNEMO_DATABASE_DSN and MNEMO_DB)")
	pf.String("driver", "", "Database driver: sqlite or postgres")
	pf.String("log-level", "", "Log level: debug, info, warn, error")

	_ = v.BindPFlag("database.dsn", pf.Lookup("db"))
	_ = v.BindPFlag("database.driver", pf.Lookup("driver"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

func printJSON(w io.Writer, val any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(val); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
