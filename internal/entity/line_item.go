package entity

import (
	"time"

	"github.com/google/uuid"
)

// LineItem is one extracted (and possibly hand-corrected) product in a batch.
type LineItem struct {
	ID                  uuid.UUID `json:"id"`
	FileName            string    `json:"file_name"`
	ItemName            string    `json:"item_name"`
	Material            string    `json:"material"`
	WeightKg            float64   `json:"weight_kg"`
	HSCode              string    `json:"hs_code"`
	EmissionFactor      float64   `json:"emission_factor"`
	OptimizedFactor     float64   `json:"optimized_factor"`
	BaselineTax         int64     `json:"baseline_tax"`
	OptimizedTax        int64     `json:"optimized_tax"`
	Savings             int64     `json:"savings"`
	ExchangeRateApplied float64   `json:"exchange_rate_applied"`
	Company             string    `json:"company"`
	AnalyzedAt          time.Time `json:"analyzed_at"`
	Failed              bool      `json:"failed,omitempty"`
}

// TaxEstimate is the baseline tax in local currency.
func (li LineItem) TaxEstimate() int64 { return li.BaselineTax }

// WeightTonnes converts the stored kilograms.
func (li LineItem) WeightTonnes() float64 { return li.WeightKg / 1000 }

// TotalEmissions is the baseline tCO2e of the line.
func (li LineItem) TotalEmissions() float64 { return li.WeightTonnes() * li.EmissionFactor }
