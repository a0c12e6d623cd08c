// Package pipeline turns uploaded images into priced line items: vision
// extraction, material resolution, then tax computation.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
	"github.com/joseph-ayodele/cbam-tracker/internal/taxcalc"
)

// TableSource yields the reference table current at call time.
type TableSource interface {
	Table(ctx context.Context) *reftable.Table
}

// Correction is a user edit to one line. Nil fields are left unchanged.
type Correction struct {
	ItemName *string  `json:"item_name,omitempty"`
	Material *string  `json:"material,omitempty"`
	WeightKg *float64 `json:"weight_kg,omitempty"`
	HSCode   *string  `json:"hs_code,omitempty"`
}

// Analyzer coordinates the extract and price stages.
type Analyzer struct {
	Logger  *slog.Logger
	Tables  TableSource
	Extract *ExtractStage
	Price   *PriceStage
	Now     func() time.Time
}

func NewAnalyzer(logger *slog.Logger, tables TableSource, extract *ExtractStage, price *PriceStage) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if price == nil {
		price = NewPriceStage(nil, logger)
	}
	return &Analyzer{Logger: logger, Tables: tables, Extract: extract, Price: price, Now: time.Now}
}

// AnalyzeImage never fails: an extraction error, an unusable reply, or a
// reply with no items yields a single failed placeholder line.
func (a *Analyzer) AnalyzeImage(ctx context.Context, up Upload, company string) []entity.LineItem {
	table := a.Tables.Table(ctx)
	return a.analyze(ctx, table, up, company)
}

func (a *Analyzer) analyze(ctx context.Context, table *reftable.Table, up Upload, company string) []entity.LineItem {
	start := time.Now()
	at := a.Now()

	raw, err := a.Extract.Run(ctx, up, table.CategoriesWithOther())
	if err != nil || len(raw) == 0 {
		a.Logger.Warn("pipeline.analyze.failed",
			"file", up.Filename,
			"error", err,
			"items", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return []entity.LineItem{FailedLine(table, up.Filename, company, at)}
	}

	lines := make([]entity.LineItem, 0, len(raw))
	for _, it := range raw {
		lines = append(lines, a.Price.Line(table, it, up.Filename, company, at))
	}
	a.Logger.Info("pipeline.analyze.ok",
		"file", up.Filename,
		"items", len(lines),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return lines
}

// AnalyzeBatch runs uploads one after another against a single table
// snapshot. progress, if set, is called after each upload.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, uploads []Upload, company string, progress func(done, total int)) []entity.LineItem {
	table := a.Tables.Table(ctx)
	start := time.Now()

	var lines []entity.LineItem
	failed := 0
	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			a.Logger.Warn("pipeline.batch.cancelled", "done", i, "total", len(uploads), "error", err)
			for _, rest := range uploads[i:] {
				lines = append(lines, FailedLine(table, rest.Filename, company, a.Now()))
			}
			failed += len(uploads) - i
			break
		}
		got := a.analyze(ctx, table, up, company)
		if len(got) == 1 && got[0].Failed {
			failed++
		}
		lines = append(lines, got...)
		if progress != nil {
			progress(i+1, len(uploads))
		}
	}
	a.Logger.Info("pipeline.batch.done",
		"files", len(uploads),
		"lines", len(lines),
		"failed", failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return lines
}

// Recompute applies c to item and recomputes its taxes with the current
// table. Changing the material without an HS override resets the HS code to
// the new category's code. The material is taken as typed; a category missing
// from the table is priced with the table's first row and logged.
func (a *Analyzer) Recompute(ctx context.Context, item entity.LineItem, c Correction) entity.LineItem {
	table := a.Tables.Table(ctx)

	if c.ItemName != nil {
		if name := strings.TrimSpace(*c.ItemName); name != "" {
			item.ItemName = name
		}
	}
	materialChanged := false
	if c.Material != nil {
		if m := strings.TrimSpace(*c.Material); m != "" && m != item.Material {
			item.Material = m
			materialChanged = true
		}
	}
	if c.WeightKg != nil {
		item.WeightKg = *c.WeightKg
	}

	res := a.Price.compute(table, item.Material, item.WeightKg)
	item.WeightKg = res.WeightKg
	item.EmissionFactor = res.EmissionFactor
	item.OptimizedFactor = res.OptimizedFactor
	item.BaselineTax = res.BaselineTax
	item.OptimizedTax = res.OptimizedTax
	item.Savings = res.Savings
	item.ExchangeRateApplied = res.ExchangeRate

	switch {
	case c.HSCode != nil && strings.TrimSpace(*c.HSCode) != "":
		item.HSCode = reftable.NormalizeHSCode(*c.HSCode)
	case c.HSCode != nil, materialChanged, item.HSCode == "":
		item.HSCode = res.HSCode
	}
	if materialChanged || c.WeightKg != nil {
		item.Failed = false
	}

	a.Logger.Info("pipeline.recompute",
		"line_id", item.ID,
		"material", item.Material,
		"weight_kg", item.WeightKg,
		"hs_code", item.HSCode,
		"baseline_tax", item.BaselineTax,
		"fell_back", res.FellBack,
	)
	return item
}

// Estimate prices a material and weight without an image.
func (a *Analyzer) Estimate(ctx context.Context, material string, weightKg float64) taxcalc.Result {
	table := a.Tables.Table(ctx)
	category := material
	if !table.Has(category) && category != constants.OtherCategory {
		category = a.Price.Resolver.Resolve("", material, table.CategoriesWithOther())
	}
	return a.Price.compute(table, category, weightKg)
}
