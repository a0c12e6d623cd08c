package constants

// Category keys and sentinel labels that the resolver, calculator and report
// builder agree on.
const (
	// OtherCategory is the exempt / no-tax bucket. It never inherits another
	// category's factors.
	OtherCategory = "Other"

	// Unidentified replaces an empty item name in an extraction reply.
	Unidentified = "Unidentified"

	// AnalysisFailed is the item name of the sentinel line produced when an
	// image could not be analyzed.
	AnalysisFailed = "Analysis Failed"
)

// Reference-table defaults.
const (
	DefaultHSCode       = "000000"
	HSCodeWidth         = 6
	DefaultExchangeRate = 1450.0
	DefaultCarbonPrice  = 85.0
)

// Calculation and matching knobs.
const (
	// NonPositiveWeightKg is substituted for a weight <= 0 before the tax
	// formula runs.
	NonPositiveWeightKg = 1.0

	// FuzzyThreshold is the minimum normalized similarity (0..1) for the
	// resolver's fuzzy fallback to accept a category.
	FuzzyThreshold = 0.4
)

// Report and account conventions.
const (
	OriginCountry     = "KR (Korea)"
	ReferenceCurrency = "EUR"
	LocalCurrency     = "KRW"

	// ActiveFlag is the literal value of the credential table's `active`
	// column that allows a login.
	ActiveFlag = "o"
)

// FallbackDisplayCategory is the row whose exchange rate is shown as the
// "live rate" banner when present.
const FallbackDisplayCategory = "Iron/Steel"
