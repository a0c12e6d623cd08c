package reftable

import (
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/source"
)

// ErrEmptySource is returned when a source has no header row.
var ErrEmptySource = source.ErrEmpty

// Options carries the defaults applied to cells the source leaves blank.
type Options struct {
	CarbonPrice         float64
	DefaultExchangeRate float64
}

func (o Options) withDefaults() Options {
	if o.CarbonPrice <= 0 {
		o.CarbonPrice = constants.DefaultCarbonPrice
	}
	if o.DefaultExchangeRate <= 0 {
		o.DefaultExchangeRate = constants.DefaultExchangeRate
	}
	return o
}

// ParseCSV reads a CSV reference table.
func ParseCSV(r io.Reader, opts Options, logger *slog.Logger) (*Table, error) {
	return parse(r, source.FormatCSV, "", opts, logger)
}

// ParseXLSX reads a workbook reference table from sheet, or from the first
// sheet when sheet is empty.
func ParseXLSX(r io.Reader, sheet string, opts Options, logger *slog.Logger) (*Table, error) {
	return parse(r, source.FormatXLSX, sheet, opts, logger)
}

func parse(r io.Reader, format source.Format, sheet string, opts Options, logger *slog.Logger) (*Table, error) {
	rows, err := source.ReadRows(r, format, sheet)
	if err != nil {
		return nil, err
	}
	return fromRows(rows[0], rows[1:], opts, logger)
}

func fromRows(header []string, rows [][]string, opts Options, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(header) == 0 {
		return nil, ErrEmptySource
	}
	opts = opts.withDefaults()
	cols := resolveColumns(header)

	if cols.hsCode < 0 || cols.exchangeRate < 0 || cols.defaultFactor < 0 || cols.optimized < 0 {
		logger.Warn("reftable.parse.missing_columns",
			"header", header,
			"hs_code", cols.hsCode >= 0,
			"exchange_rate", cols.exchangeRate >= 0,
			"default", cols.defaultFactor >= 0,
			"optimized", cols.optimized >= 0,
		)
	}

	t := NewTable()
	skipped := 0
	for i, row := range rows {
		cat := cell(row, cols.category)
		if isBlankCategory(cat) {
			skipped++
			continue
		}
		rec := entity.MaterialRecord{
			Category:        cat,
			DefaultFactor:   parseFactor(cell(row, cols.defaultFactor)),
			OptimizedFactor: parseFactor(cell(row, cols.optimized)),
			HSCode:          NormalizeHSCode(cell(row, cols.hsCode)),
			CarbonPrice:     parsePositive(cell(row, cols.carbonPrice), opts.CarbonPrice),
			ExchangeRate:    parsePositive(cell(row, cols.exchangeRate), opts.DefaultExchangeRate),
		}
		if t.Put(rec) {
			logger.Warn("reftable.parse.duplicate_category", "category", cat, "row", i+2)
		}
	}

	logger.Debug("reftable.parse.ok", "rows", len(rows), "categories", t.Len(), "skipped", skipped)
	return t, nil
}

func isBlankCategory(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return true
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseFactor defaults to 0 for blanks, garbage and negatives.
func parseFactor(s string) float64 {
	f, ok := parseNumber(s)
	if !ok || f < 0 {
		return 0
	}
	return f
}

func parsePositive(s string, def float64) float64 {
	f, ok := parseNumber(s)
	if !ok || f <= 0 {
		return def
	}
	return f
}

// NormalizeHSCode keeps digits only and pads to the six-character display
// width. A float artifact such as "731800.0" loses its zero fraction, while a
// dotted code such as "7318.15" keeps all of its digits. Empty input yields
// the default code.
func NormalizeHSCode(raw string) string {
	s := strings.TrimSpace(raw)
	if head, frac, found := strings.Cut(s, "."); found && strings.Trim(frac, "0") == "" {
		s = head
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" || strings.Trim(digits, "0") == "" {
		return constants.DefaultHSCode
	}
	if len(digits) < constants.HSCodeWidth {
		digits = strings.Repeat("0", constants.HSCodeWidth-len(digits)) + digits
	}
	return digits
}
