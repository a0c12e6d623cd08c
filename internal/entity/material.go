package entity

// MaterialRecord is one row of the reference table, keyed by Category.
type MaterialRecord struct {
	Category        string  `json:"category"`
	DefaultFactor   float64 `json:"default_factor"`   // tCO2e per tonne, baseline accounting
	OptimizedFactor float64 `json:"optimized_factor"` // tCO2e per tonne, verified accounting
	HSCode          string  `json:"hs_code"`
	CarbonPrice     float64 `json:"carbon_price"`  // reference currency per tCO2e
	ExchangeRate    float64 `json:"exchange_rate"` // reference -> local currency
}
