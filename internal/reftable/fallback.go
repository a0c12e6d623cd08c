package reftable

import (
	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

// Fallback is the built-in table served when the published source cannot be
// read. It is a fresh copy on each call.
func Fallback() *Table {
	return NewTable(
		entity.MaterialRecord{
			Category:        "Iron/Steel",
			DefaultFactor:   2.5,
			OptimizedFactor: 0.5,
			HSCode:          "731800",
			CarbonPrice:     constants.DefaultCarbonPrice,
			ExchangeRate:    constants.DefaultExchangeRate,
		},
		entity.MaterialRecord{
			Category:        "Aluminum",
			DefaultFactor:   8.0,
			OptimizedFactor: 1.5,
			HSCode:          "760400",
			CarbonPrice:     constants.DefaultCarbonPrice,
			ExchangeRate:    constants.DefaultExchangeRate,
		},
		entity.MaterialRecord{
			Category:     constants.OtherCategory,
			HSCode:       constants.DefaultHSCode,
			ExchangeRate: constants.DefaultExchangeRate,
		},
	)
}
