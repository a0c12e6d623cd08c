package taxcalc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
)

func steelTable() *reftable.Table {
	return reftable.NewTable(
		entity.MaterialRecord{Category: "Iron/Steel", DefaultFactor: 2.5, OptimizedFactor: 0.5, HSCode: "731800", CarbonPrice: 85, ExchangeRate: 1450},
		entity.MaterialRecord{Category: "Aluminum", DefaultFactor: 8, OptimizedFactor: 1.5, HSCode: "760400", CarbonPrice: 85, ExchangeRate: 1460},
		entity.MaterialRecord{Category: "Other", HSCode: "000000", ExchangeRate: 1450},
	)
}

func TestCompute_IronSteelTwoTonnes(t *testing.T) {
	r := Compute(steelTable(), "Iron/Steel", 2000)
	assert.Equal(t, int64(616250), r.BaselineTax)
	assert.Equal(t, int64(123250), r.OptimizedTax)
	assert.Equal(t, int64(493000), r.Savings)
	assert.Equal(t, "731800", r.HSCode)
	assert.Equal(t, 1450.0, r.ExchangeRate)
	assert.False(t, r.FellBack)
	assert.InDelta(t, 5.0, EstimatedEmissions(r), 1e-9)
}

func TestCompute_SavingsInvariant(t *testing.T) {
	tbl := steelTable()
	for _, cat := range tbl.Categories() {
		for _, w := range []float64{0.1, 1, 12.5, 999.99, 2000, 123456.789} {
			r := Compute(tbl, cat, w)
			assert.Equal(t, r.BaselineTax-r.OptimizedTax, r.Savings, "%s %v", cat, w)
			assert.GreaterOrEqual(t, r.BaselineTax, int64(0))
		}
	}
}

func TestCompute_Truncates(t *testing.T) {
	// 0.333 t * 8 * 85 * 1460 = 330602.4
	r := Compute(steelTable(), "Aluminum", 333)
	assert.Equal(t, int64(330602), r.BaselineTax)
	assert.Equal(t, 1460.0, r.ExchangeRate)
}

func TestCompute_OtherIsExempt(t *testing.T) {
	for _, w := range []float64{1, 500, 1e6} {
		r := Compute(steelTable(), "Other", w)
		assert.Zero(t, r.BaselineTax)
		assert.Zero(t, r.OptimizedTax)
		assert.False(t, r.FellBack)
	}

	noOther := reftable.NewTable(entity.MaterialRecord{Category: "Iron/Steel", DefaultFactor: 2.5, CarbonPrice: 85, ExchangeRate: 1450})
	r := Compute(noOther, "Other", 1000)
	assert.Zero(t, r.BaselineTax, "Other never inherits the first row")
	assert.Equal(t, "000000", r.HSCode)
}

func TestCompute_UnknownCategoryUsesFirstRow(t *testing.T) {
	r := Compute(steelTable(), "Titanium", 2000)
	assert.True(t, r.FellBack)
	assert.Equal(t, int64(616250), r.BaselineTax)
	assert.Equal(t, "731800", r.HSCode)
	assert.Equal(t, "Titanium", r.Category)
}

func TestCompute_EmptyTable(t *testing.T) {
	for _, tbl := range []*reftable.Table{nil, reftable.NewTable()} {
		r := Compute(tbl, "Iron/Steel", 2000)
		assert.Zero(t, r.BaselineTax)
		assert.Zero(t, r.OptimizedTax)
		assert.Zero(t, r.Savings)
		assert.Equal(t, 1450.0, r.ExchangeRate)
		assert.Equal(t, "000000", r.HSCode)
	}
}

func TestCompute_NonPositiveWeight(t *testing.T) {
	for _, w := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := Compute(steelTable(), "Iron/Steel", w)
		assert.Equal(t, 1.0, r.WeightKg)
		// 0.001 * 2.5 * 85 * 1450 = 308.125
		assert.Equal(t, int64(308), r.BaselineTax)
		assert.Equal(t, int64(61), r.OptimizedTax)
	}
}

func TestCompute_Pure(t *testing.T) {
	tbl := steelTable()
	a := Compute(tbl, "Aluminum", 42)
	b := Compute(tbl, "Aluminum", 42)
	assert.Equal(t, a, b)
	assert.Equal(t, 3, tbl.Len())
}

func TestCompute_NonFiniteTableValues(t *testing.T) {
	tbl := reftable.NewTable(
		entity.MaterialRecord{Category: "Iron/Steel", DefaultFactor: math.Inf(1), OptimizedFactor: math.NaN(), CarbonPrice: 85, ExchangeRate: math.Inf(1)},
		entity.MaterialRecord{Category: "Aluminum", DefaultFactor: 8, OptimizedFactor: 1.5, CarbonPrice: math.NaN(), ExchangeRate: 1460},
	)
	var r Result
	assert.NotPanics(t, func() { r = Compute(tbl, "Iron/Steel", 1000) })
	assert.Zero(t, r.BaselineTax)
	assert.Zero(t, r.OptimizedTax)
	assert.Equal(t, 1450.0, r.ExchangeRate)
	assert.Zero(t, EstimatedEmissions(r))

	assert.NotPanics(t, func() { r = Compute(tbl, "Aluminum", 1000) })
	assert.Zero(t, r.BaselineTax)
}

func TestCompute_SaturatesHugeWeights(t *testing.T) {
	r := Compute(steelTable(), "Iron/Steel", 1e18)
	assert.Equal(t, int64(math.MaxInt64), r.BaselineTax)
	assert.Equal(t, int64(math.MaxInt64), r.OptimizedTax)
	assert.Zero(t, r.Savings)

	// 1e12 kg stays below the cap: 2.5 * 85 * 1450 * 1e9
	r = Compute(steelTable(), "Iron/Steel", 1e12)
	assert.Equal(t, int64(308125000000000), r.BaselineTax)
	assert.Equal(t, int64(61625000000000), r.OptimizedTax)
	assert.Equal(t, r.BaselineTax-r.OptimizedTax, r.Savings)
	assert.GreaterOrEqual(t, r.Savings, int64(0))
}
