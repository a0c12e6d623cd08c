package export

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

func sampleItems() []entity.LineItem {
	return []entity.LineItem{
		{ItemName: "Hex bolt", Material: "Steel (Bolts/Screws)", WeightKg: 2000, HSCode: "731815",
			EmissionFactor: 2.5, BaselineTax: 616250, OptimizedTax: 123250, Savings: 493000, ExchangeRateApplied: 1450, Company: "ACME"},
		{ItemName: "Ingot", Material: "Aluminum", WeightKg: 500, HSCode: "",
			EmissionFactor: 8, BaselineTax: 496400, OptimizedTax: 93075, Savings: 403325, ExchangeRateApplied: 1460, Company: "ACME"},
	}
}

func TestBuildReport_EmptyReturnsNil(t *testing.T) {
	b, err := NewService(nil).BuildReport(context.Background(), ReportInput{Company: "ACME"})
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestBuildReport_Sheets(t *testing.T) {
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	b, err := NewService(nil).BuildReport(context.Background(), ReportInput{Company: "ACME", Date: date, Items: sampleItems()})
	require.NoError(t, err)
	require.NotEmpty(t, b)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SummarySheet, DataSheet}, f.GetSheetList())

	summary, err := f.GetRows(SummarySheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, summaryHeaders, summary[0])
	assert.Equal(t, "2025-06-02", summary[1][0])
	assert.Equal(t, "ACME", summary[1][1])
	assert.Equal(t, "2", summary[1][2])
	assert.Equal(t, 2.5, mustFloat(t, summary[1][3]))
	// 616250/1450 + 496400/1460
	assert.InDelta(t, 425.0+340.0, mustFloat(t, summary[1][4]), 1e-6)
	assert.Equal(t, "1112650", summary[1][5])

	data, err := f.GetRows(DataSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, data, 3)
	assert.Equal(t, dataHeaders, data[0])
	assert.Equal(t, []string{"1", "KR (Korea)", "731815", "Hex bolt", "Steel (Bolts/Screws)"}, data[1][:5])
	assert.Equal(t, 2.0, mustFloat(t, data[1][5]))
	assert.Equal(t, 5.0, mustFloat(t, data[1][7]))
	assert.Equal(t, "616250", data[1][9])
	assert.Equal(t, "493000", data[1][11])
	assert.Equal(t, "000000", data[2][2], "blank HS code is exported as the default")

	style, err := f.GetCellStyle(DataSheet, "A1")
	require.NoError(t, err)
	def, err := f.GetStyle(style)
	require.NoError(t, err)
	assert.True(t, def.Font.Bold)
	require.NotEmpty(t, def.Fill.Color)
	assert.Contains(t, strings.ToUpper(def.Fill.Color[0]), headerFill)
}

func TestBuildReport_CompanyFromItems(t *testing.T) {
	b, err := NewService(nil).BuildReport(context.Background(), ReportInput{Items: sampleItems()[:1]})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	v, err := f.GetCellValue(SummarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "ACME", v)
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "CBAM_Report_20250602.xlsx", ReportFileName(time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)))
}

func TestSummarize_SkipsZeroRate(t *testing.T) {
	s := Summarize([]entity.LineItem{{WeightKg: 1000, BaselineTax: 100}, {WeightKg: 500, BaselineTax: 1450, ExchangeRateApplied: 1450}})
	assert.Equal(t, 2, s.Items)
	assert.Equal(t, 1.5, s.WeightTonnes)
	assert.Equal(t, int64(1550), s.TaxLocal)
	assert.Equal(t, 1.0, s.TaxReference)
}

func mustFloat(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return f
}
