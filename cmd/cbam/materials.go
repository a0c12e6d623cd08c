package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cbam-tracker/internal/app"
)

func newMaterialsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "materials",
		Short: "Print the current reference table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			tables, err := app.NewTables(cfg, logger)
			if err != nil {
				return err
			}
			t := tables.Table(cmd.Context())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"records":               t.Records(),
					"display_exchange_rate": t.DisplayExchangeRate(),
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tHS CODE\tDEFAULT\tOPTIMIZED\tPRICE\tRATE")
			for _, r := range t.Records() {
				fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%g\n",
					r.Category, r.HSCode, r.DefaultFactor, r.OptimizedFactor, r.CarbonPrice, r.ExchangeRate)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nexchange rate: %g\n", t.DisplayExchangeRate())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
