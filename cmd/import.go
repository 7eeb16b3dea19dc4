package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/mnemo/internal/catalog"
	"github.com/abhisek/mnemo/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Import units and items from a catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Load(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		d, err := openDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.close()

		var res catalog.Result
		err = d.store.InTx(ctx, func(tx *store.Tx) error {
			var err error
			res, err = c.Import(ctx, tx, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}

		d.log.Info("catalog imported",
			zap.String("path", args[0]),
			zap.String("version", c.Version),
			zap.Int("units", res.Units),
			zap.Int("items", res.Items))
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d units and %d items (catalog %s).\n", res.Units, res.Items, c.Version)
		return nil
	},
}
