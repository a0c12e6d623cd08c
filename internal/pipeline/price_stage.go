package pipeline

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
	"github.com/joseph-ayodele/cbam-tracker/internal/resolver"
	"github.com/joseph-ayodele/cbam-tracker/internal/taxcalc"
)

// PriceStage resolves a raw item's material and computes its taxes.
type PriceStage struct {
	Resolver *resolver.Resolver
	Logger   *slog.Logger
}

func NewPriceStage(r *resolver.Resolver, logger *slog.Logger) *PriceStage {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = resolver.New(nil, logger)
	}
	return &PriceStage{Resolver: r, Logger: logger}
}

// Line builds a priced line item. A model-supplied HS code wins over the
// table's code.
func (s *PriceStage) Line(table *reftable.Table, raw llm.RawItem, filename, company string, at time.Time) entity.LineItem {
	name := strings.TrimSpace(raw.Item)
	if name == "" {
		name = constants.Unidentified
	}
	category := s.Resolver.Resolve(name, raw.Material, table.CategoriesWithOther())
	res := s.compute(table, category, raw.WeightKg)

	hs := res.HSCode
	if strings.TrimSpace(raw.HSCode) != "" {
		hs = reftable.NormalizeHSCode(raw.HSCode)
	}

	s.Logger.Debug("pipeline.price.line",
		"file", filename,
		"item", name,
		"guess", raw.Material,
		"category", category,
		"weight_kg", res.WeightKg,
		"baseline_tax", res.BaselineTax,
	)
	return entity.LineItem{
		ID:                  uuid.New(),
		FileName:            filename,
		ItemName:            name,
		Material:            category,
		WeightKg:            res.WeightKg,
		HSCode:              hs,
		EmissionFactor:      res.EmissionFactor,
		OptimizedFactor:     res.OptimizedFactor,
		BaselineTax:         res.BaselineTax,
		OptimizedTax:        res.OptimizedTax,
		Savings:             res.Savings,
		ExchangeRateApplied: res.ExchangeRate,
		Company:             company,
		AnalyzedAt:          at,
	}
}

func (s *PriceStage) compute(table *reftable.Table, category string, weightKg float64) taxcalc.Result {
	res := taxcalc.Compute(table, category, weightKg)
	if res.FellBack {
		metrics.CategoryFallbacksTotal.Inc()
		first, _ := table.First()
		s.Logger.Warn("pipeline.price.category_fallback",
			"category", category,
			"used", first.Category,
			"table_size", table.Len(),
		)
	}
	return res
}

// FailedLine is the placeholder emitted when an image yields nothing usable.
func FailedLine(table *reftable.Table, filename, company string, at time.Time) entity.LineItem {
	return entity.LineItem{
		ID:                  uuid.New(),
		FileName:            filename,
		ItemName:            constants.AnalysisFailed,
		Material:            constants.OtherCategory,
		HSCode:              constants.DefaultHSCode,
		ExchangeRateApplied: table.DisplayExchangeRate(),
		Company:             company,
		AnalyzedAt:          at,
		Failed:              true,
	}
}
