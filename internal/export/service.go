package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

const (
	SummarySheet = "Report_Summary"
	DataSheet    = "CBAM_Data_For_Submission"

	headerFill = "004494"

	// built-in excelize number format ids
	numFmtDecimal = 4 // #,##0.00
	numFmtInteger = 3 // #,##0
)

var (
	summaryHeaders = []string{
		"Report Date",
		"Company",
		"Total Items",
		"Total Weight (Ton)",
		"Total Est. Tax (EUR)",
		"Total Est. Tax (KRW)",
	}
	dataHeaders = []string{
		"Line No",
		"Origin Country",
		"CN Code (HS Code)",
		"Goods Name",
		"Material",
		"Net Mass (Tonnes)",
		"Direct Emissions (tCO2e/t)",
		"Total Emissions (tCO2e)",
		"Applied Exch. Rate",
		"Est. Tax (KRW)",
		"Optimized Tax (KRW)",
		"Savings (KRW)",
	}
)

// ReportInput is one batch to export.
type ReportInput struct {
	Company string
	Date    time.Time
	Items   []entity.LineItem
}

// Service renders batches as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ReportFileName is the download name for a report built on date.
func ReportFileName(date time.Time) string {
	return "CBAM_Report_" + date.Format("20060102") + ".xlsx"
}

// Summary holds the totals shown on the summary sheet.
type Summary struct {
	Items        int
	WeightTonnes float64
	TaxLocal     int64
	TaxReference float64
}

// Summarize totals items. The reference-currency total converts each line
// with its own applied exchange rate.
func Summarize(items []entity.LineItem) Summary {
	var s Summary
	s.Items = len(items)
	for _, it := range items {
		s.WeightTonnes += it.WeightTonnes()
		s.TaxLocal += it.TaxEstimate()
		if it.ExchangeRateApplied > 0 {
			s.TaxReference += float64(it.TaxEstimate()) / it.ExchangeRateApplied
		}
	}
	return s
}

// BuildReport returns the workbook bytes, or nil with no error when there
// are no items.
func (s *Service) BuildReport(ctx context.Context, in ReportInput) ([]byte, error) {
	if len(in.Items) == 0 {
		s.logger.Info("export.xlsx.empty", "company", in.Company)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	b, err := s.build(in)
	if err != nil {
		metrics.ReportsBuilt.WithLabelValues("error").Inc()
		s.logger.Error("export.xlsx.failed", "error", err, "rows", len(in.Items))
		return nil, err
	}
	metrics.ReportsBuilt.WithLabelValues("ok").Inc()
	s.logger.Info("export.xlsx.ok",
		"company", companyOf(in),
		"rows", len(in.Items),
		"bytes", len(b),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

func (s *Service) build(in ReportInput) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(DataSheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}
	if err := writeSummary(f, st, in); err != nil {
		return nil, err
	}
	if err := writeData(f, st, in.Items); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

type styles struct {
	header, text, decimal, integer int
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Vertical: "center"}

	var st styles
	var err error
	if st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
		Border:    border,
	}); err != nil {
		return st, fmt.Errorf("header style: %w", err)
	}
	if st.text, err = f.NewStyle(&excelize.Style{Alignment: center, Border: border}); err != nil {
		return st, fmt.Errorf("text style: %w", err)
	}
	if st.decimal, err = f.NewStyle(&excelize.Style{Alignment: center, Border: border, NumFmt: numFmtDecimal}); err != nil {
		return st, fmt.Errorf("decimal style: %w", err)
	}
	if st.integer, err = f.NewStyle(&excelize.Style{Alignment: center, Border: border, NumFmt: numFmtInteger}); err != nil {
		return st, fmt.Errorf("integer style: %w", err)
	}
	return st, nil
}

func writeSummary(f *excelize.File, st styles, in ReportInput) error {
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	sum := Summarize(in.Items)

	if err := writeHeader(f, SummarySheet, summaryHeaders, st.header); err != nil {
		return err
	}
	row := []any{date.Format("2006-01-02"), companyOf(in), sum.Items, sum.WeightTonnes, sum.TaxReference, sum.TaxLocal}
	if err := f.SetSheetRow(SummarySheet, "A2", &row); err != nil {
		return fmt.Errorf("summary row: %w", err)
	}
	cellStyles := []int{st.text, st.text, st.integer, st.decimal, st.decimal, st.integer}
	for i, style := range cellStyles {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellStyle(SummarySheet, cell, cell, style); err != nil {
			return fmt.Errorf("summary style: %w", err)
		}
	}
	return f.SetColWidth(SummarySheet, "A", "F", 25)
}

func writeData(f *excelize.File, st styles, items []entity.LineItem) error {
	if err := writeHeader(f, DataSheet, dataHeaders, st.header); err != nil {
		return err
	}
	// column index (1-based) -> style
	colStyle := []int{st.integer, st.text, st.text, st.text, st.text, st.decimal, st.decimal, st.decimal, st.decimal, st.integer, st.integer, st.integer}

	for i, it := range items {
		r := i + 2
		hs := it.HSCode
		if hs == "" {
			hs = constants.DefaultHSCode
		}
		row := []any{
			i + 1,
			constants.OriginCountry,
			hs,
			it.ItemName,
			it.Material,
			it.WeightTonnes(),
			it.EmissionFactor,
			it.TotalEmissions(),
			it.ExchangeRateApplied,
			it.BaselineTax,
			it.OptimizedTax,
			it.Savings,
		}
		start, _ := excelize.CoordinatesToCellName(1, r)
		if err := f.SetSheetRow(DataSheet, start, &row); err != nil {
			return fmt.Errorf("data row %d: %w", r, err)
		}
	}
	last := len(items) + 1
	for c, style := range colStyle {
		from, _ := excelize.CoordinatesToCellName(c+1, 2)
		to, _ := excelize.CoordinatesToCellName(c+1, last)
		if err := f.SetCellStyle(DataSheet, from, to, style); err != nil {
			return fmt.Errorf("data style: %w", err)
		}
	}
	_ = f.SetColWidth(DataSheet, "A", "A", 8)
	_ = f.SetColWidth(DataSheet, "B", "C", 16)
	_ = f.SetColWidth(DataSheet, "D", "E", 28)
	return f.SetColWidth(DataSheet, "F", "L", 20)
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	end, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", end, style); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	return f.SetRowHeight(sheet, 1, 32)
}

func companyOf(in ReportInput) string {
	if c := strings.TrimSpace(in.Company); c != "" {
		return c
	}
	for _, it := range in.Items {
		if it.Company != "" {
			return it.Company
		}
	}
	return "Unknown"
}
