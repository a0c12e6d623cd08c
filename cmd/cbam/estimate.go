package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cbam-tracker/internal/app"
	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/pipeline"
	"github.com/joseph-ayodele/cbam-tracker/internal/taxcalc"
)

func newEstimateCmd(root *rootOptions) *cobra.Command {
	var (
		material string
		weightKg float64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price one material and weight without an image",
		Example: `  cbam estimate --material "Iron/Steel" --weight 2000
  cbam estimate --material "steel bolts" --weight 250 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(material) == "" {
				return common.InvalidArgumentError("--material is required")
			}
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			tables, err := app.NewTables(cfg, logger)
			if err != nil {
				return err
			}
			res, err := app.NewResolver(cfg.Sources.RulesFile, logger)
			if err != nil {
				return err
			}
			analyzer := pipeline.NewAnalyzer(logger, tables, nil, pipeline.NewPriceStage(res, logger))
			r := analyzer.Estimate(cmd.Context(), strings.TrimSpace(material), weightKg)

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			fmt.Fprintf(w, "category:       %s\n", r.Category)
			fmt.Fprintf(w, "hs code:        %s\n", r.HSCode)
			fmt.Fprintf(w, "weight:         %g kg\n", r.WeightKg)
			fmt.Fprintf(w, "emissions:      %.4f tCO2e\n", taxcalc.EstimatedEmissions(r))
			fmt.Fprintf(w, "baseline tax:   %d\n", r.BaselineTax)
			fmt.Fprintf(w, "optimized tax:  %d\n", r.OptimizedTax)
			fmt.Fprintf(w, "savings:        %d\n", r.Savings)
			return nil
		},
	}
	cmd.Flags().StringVar(&material, "material", "", "category or free-text material (required)")
	cmd.Flags().Float64Var(&weightKg, "weight", 0, "weight in kg; non-positive is treated as 1 kg")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
