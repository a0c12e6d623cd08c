// Package taxcalc computes the baseline and optimized carbon border tax for
// a line item. Compute is pure and cheap enough to run on every edit.
package taxcalc

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
)

var (
	thousand = decimal.NewFromInt(1000)
	maxTax   = decimal.NewFromInt(math.MaxInt64)
)

// Result is the outcome of one computation. Taxes are in local currency,
// truncated toward zero.
type Result struct {
	Category        string  `json:"category"`
	WeightKg        float64 `json:"weight_kg"`
	BaselineTax     int64   `json:"baseline_tax"`
	OptimizedTax    int64   `json:"optimized_tax"`
	Savings         int64   `json:"savings"`
	HSCode          string  `json:"hs_code"`
	ExchangeRate    float64 `json:"exchange_rate"`
	CarbonPrice     float64 `json:"carbon_price"`
	EmissionFactor  float64 `json:"emission_factor"`
	OptimizedFactor float64 `json:"optimized_factor"`
	// FellBack is set when category was not in the table and another
	// row's factors were used.
	FellBack bool `json:"fell_back,omitempty"`
}

// Compute looks category up in table and applies
// floor(tonnes * factor * price * rate) for both factors.
//
// An unknown category uses the first row of the table. "Other" uses the
// table's "Other" row when present and an all-zero record otherwise, so it
// never inherits another category's factors. A non-positive or non-finite
// weight is treated as 1 kg. Non-finite factors, prices and rates count as
// missing, and taxes saturate at math.MaxInt64.
func Compute(table *reftable.Table, category string, weightKg float64) Result {
	rec, fellBack := lookup(table, category)
	rec.DefaultFactor = finite(rec.DefaultFactor)
	rec.OptimizedFactor = finite(rec.OptimizedFactor)
	rec.CarbonPrice = finite(rec.CarbonPrice)

	if !(weightKg > 0) || math.IsInf(weightKg, 1) {
		weightKg = constants.NonPositiveWeightKg
	}
	rate := finite(rec.ExchangeRate)
	if rate <= 0 {
		rate = constants.DefaultExchangeRate
	}

	hs := rec.HSCode
	if hs == "" {
		hs = constants.DefaultHSCode
	}

	baseline := tax(weightKg, rec.DefaultFactor, rec.CarbonPrice, rate)
	optimized := tax(weightKg, rec.OptimizedFactor, rec.CarbonPrice, rate)
	return Result{
		Category:        category,
		WeightKg:        weightKg,
		BaselineTax:     baseline,
		OptimizedTax:    optimized,
		Savings:         baseline - optimized,
		HSCode:          hs,
		ExchangeRate:    rate,
		CarbonPrice:     rec.CarbonPrice,
		EmissionFactor:  rec.DefaultFactor,
		OptimizedFactor: rec.OptimizedFactor,
		FellBack:        fellBack,
	}
}

func lookup(table *reftable.Table, category string) (entity.MaterialRecord, bool) {
	if category == constants.OtherCategory {
		if rec, ok := table.Get(constants.OtherCategory); ok {
			return rec, false
		}
		return zeroRecord(), false
	}
	if rec, ok := table.Get(category); ok {
		return rec, false
	}
	if rec, ok := table.First(); ok {
		return rec, true
	}
	return zeroRecord(), true
}

func zeroRecord() entity.MaterialRecord {
	return entity.MaterialRecord{
		Category:     constants.OtherCategory,
		HSCode:       constants.DefaultHSCode,
		ExchangeRate: constants.DefaultExchangeRate,
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func tax(weightKg, factor, price, rate float64) int64 {
	d := decimal.NewFromFloat(weightKg).
		Div(thousand).
		Mul(decimal.NewFromFloat(factor)).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(rate))
	switch {
	case d.GreaterThan(maxTax):
		return math.MaxInt64
	case d.IsNegative():
		return 0
	}
	return d.IntPart()
}

// EstimatedEmissions is the baseline tCO2e behind r.
func EstimatedEmissions(r Result) float64 {
	return decimal.NewFromFloat(finite(r.WeightKg)).
		Div(thousand).
		Mul(decimal.NewFromFloat(finite(r.EmissionFactor))).
		InexactFloat64()
}
