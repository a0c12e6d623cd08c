package reftable

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/source"
)

const sampleCSV = `Category,Default Factor,Optimized Factor,HS Code,Exchange Rate
Iron/Steel,2.5,0.5,731800.0,1450
Aluminum,8.0,1.5,7604,1460
Cement,"0.9",0.3,2523.0,
`

func TestParseCSV_Basic(t *testing.T) {
	tbl, err := ParseCSV(strings.NewReader(sampleCSV), Options{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Iron/Steel", "Aluminum", "Cement"}, tbl.Categories())

	steel, ok := tbl.Get("Iron/Steel")
	require.True(t, ok)
	assert.Equal(t, 2.5, steel.DefaultFactor)
	assert.Equal(t, 0.5, steel.OptimizedFactor)
	assert.Equal(t, "731800", steel.HSCode)
	assert.Equal(t, 1450.0, steel.ExchangeRate)
	assert.Equal(t, constants.DefaultCarbonPrice, steel.CarbonPrice)

	alu, _ := tbl.Get("Aluminum")
	assert.Equal(t, "007604", alu.HSCode)
	assert.Equal(t, 1460.0, alu.ExchangeRate)

	cement, _ := tbl.Get("Cement")
	assert.Equal(t, 0.9, cement.DefaultFactor)
	assert.Equal(t, "002523", cement.HSCode)
	assert.Equal(t, constants.DefaultExchangeRate, cement.ExchangeRate, "blank rate takes the default")
}

func TestParseCSV_TolerantHeaders(t *testing.T) {
	in := "\ufeff Material Type ,DEFAULT (tCO2/t), optimised factor ,hs_code,Exch. Rate (KRW),Carbon Price\n" +
		"Copper,4.1,1.2,7408,1500,90\n"
	tbl, err := ParseCSV(strings.NewReader(in), Options{}, nil)
	require.NoError(t, err)

	rec, ok := tbl.Get("Copper")
	require.True(t, ok)
	assert.Equal(t, 4.1, rec.DefaultFactor)
	assert.Equal(t, 1.2, rec.OptimizedFactor)
	assert.Equal(t, "007408", rec.HSCode)
	assert.Equal(t, 1500.0, rec.ExchangeRate)
	assert.Equal(t, 90.0, rec.CarbonPrice)
}

func TestParseCSV_MissingHSColumnDefaultsEveryRow(t *testing.T) {
	in := "category,default,optimized,exchange rate\nA,1,0.5,1450\nB,2,1,1450\n"
	tbl, err := ParseCSV(strings.NewReader(in), Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	for _, rec := range tbl.Records() {
		assert.Equal(t, "000000", rec.HSCode, rec.Category)
	}
}

func TestParseCSV_RowRules(t *testing.T) {
	in := strings.Join([]string{
		"category,default,optimized,hs code,exchange rate",
		",1,1,1,1",
		"nan,1,1,1,1",
		"None,1,1,1,1",
		"Glass,abc,-2,7005,n/a",
		"Glass,3,1,7006,1400",
		"Paper,\"1,200\",0,4801,\"1,450\"",
	}, "\n")
	tbl, err := ParseCSV(strings.NewReader(in), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Glass", "Paper"}, tbl.Categories())

	glass, _ := tbl.Get("Glass")
	assert.Equal(t, 3.0, glass.DefaultFactor, "last duplicate wins")
	assert.Equal(t, "007006", glass.HSCode)
	assert.Equal(t, 1400.0, glass.ExchangeRate)

	paper, _ := tbl.Get("Paper")
	assert.Equal(t, 1200.0, paper.DefaultFactor)
	assert.Equal(t, 1450.0, paper.ExchangeRate)
}

func TestParseCSV_GarbageFactorsBecomeZero(t *testing.T) {
	in := "category,default,optimized,hs code,exchange rate\nGlass,abc,-2,7005,n/a\n"
	tbl, err := ParseCSV(strings.NewReader(in), Options{}, nil)
	require.NoError(t, err)
	rec, _ := tbl.Get("Glass")
	assert.Zero(t, rec.DefaultFactor)
	assert.Zero(t, rec.OptimizedFactor)
	assert.Equal(t, constants.DefaultExchangeRate, rec.ExchangeRate)

	in = "category,default,optimized,hs code,exchange rate,carbon price\n" +
		"Iron/Steel,inf,-Infinity,731800,+Inf,NaN\n"
	tbl, err = ParseCSV(strings.NewReader(in), Options{}, nil)
	require.NoError(t, err)
	rec, _ = tbl.Get("Iron/Steel")
	assert.Zero(t, rec.DefaultFactor)
	assert.Zero(t, rec.OptimizedFactor)
	assert.Equal(t, constants.DefaultExchangeRate, rec.ExchangeRate)
	assert.Equal(t, constants.DefaultCarbonPrice, rec.CarbonPrice)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), Options{}, nil)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestNormalizeHSCode(t *testing.T) {
	cases := map[string]string{
		"731800":    "731800",
		"731800.0":  "731800",
		"7318":      "007318",
		"7318.00":   "007318",
		"7318.15":   "731815",
		" 7604 ":    "007604",
		"":          "000000",
		"n/a":       "000000",
		"0":         "000000",
		"7318-15":   "731815",
		"720851000": "720851000",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHSCode(in), "input %q", in)
	}
}

func TestParseXLSX_FirstSheet(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Category", "Default", "Optimized", "HS Code", "Exchange Rate"},
		{"Iron/Steel", 2.5, 0.5, 731800, 1450},
		{"Other", 0, 0, "", 1450},
	}
	for i, r := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &r))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	tbl, err := ParseXLSX(&buf, "", Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Iron/Steel", "Other"}, tbl.Categories())
	steel, _ := tbl.Get("Iron/Steel")
	assert.Equal(t, "731800", steel.HSCode)
	assert.Equal(t, 2.5, steel.DefaultFactor)
	other, _ := tbl.Get("Other")
	assert.Equal(t, "000000", other.HSCode)
}

type failingSource struct{}

func (failingSource) Fetch(context.Context) ([]byte, error) { return nil, errors.New("offline") }
func (failingSource) Format() source.Format                 { return source.FormatCSV }
func (failingSource) String() string                        { return "failing" }

func TestLoader_FallbackOnFetchError(t *testing.T) {
	l := NewLoader(failingSource{}, Options{}, nil)
	tbl := l.Load(context.Background())

	assert.Equal(t, []string{"Iron/Steel", "Aluminum", "Other"}, tbl.Categories())
	steel, _ := tbl.Get("Iron/Steel")
	assert.Equal(t, "731800", steel.HSCode)
	other, _ := tbl.Get("Other")
	assert.Zero(t, other.CarbonPrice)
	assert.Equal(t, 1450.0, other.ExchangeRate)

	_, err := l.TryLoad(context.Background())
	assert.Error(t, err)
}

func TestLoader_FallbackOnNoRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("category,default\nnan,1\n"), 0o600))

	l := NewLoader(&source.FileSource{Path: path}, Options{}, nil)
	_, err := l.TryLoad(context.Background())
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Equal(t, 3, l.Load(context.Background()).Len())
}

func TestLoader_HTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	src, err := source.New(srv.URL+"/pub?output=csv", time.Second, nil)
	require.NoError(t, err)
	tbl := NewLoader(src, Options{}, nil).Load(context.Background())
	assert.Equal(t, 3, tbl.Len())
	assert.True(t, tbl.Has("Cement"))
}

func TestLoader_HTTPErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	src, err := source.New(srv.URL, time.Second, nil)
	require.NoError(t, err)
	tbl := NewLoader(src, Options{}, nil).Load(context.Background())
	assert.Equal(t, Fallback().Categories(), tbl.Categories())
}

func TestTable_OrderAndDisplayRate(t *testing.T) {
	var nilTable *Table
	assert.Zero(t, nilTable.Len())
	assert.Equal(t, constants.DefaultExchangeRate, nilTable.DisplayExchangeRate())
	assert.Equal(t, []string{"Other"}, nilTable.CategoriesWithOther())

	tbl, err := ParseCSV(strings.NewReader(sampleCSV), Options{}, nil)
	require.NoError(t, err)
	first, ok := tbl.First()
	require.True(t, ok)
	assert.Equal(t, "Iron/Steel", first.Category)
	assert.Equal(t, 1450.0, tbl.DisplayExchangeRate())
	assert.Equal(t, []string{"Iron/Steel", "Aluminum", "Cement", "Other"}, tbl.CategoriesWithOther())

	noSteel, err := ParseCSV(strings.NewReader("category,exchange rate\nZinc,1399\n"), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1399.0, noSteel.DisplayExchangeRate())
}

type countingSource struct {
	calls int
	fail  bool
}

func (c *countingSource) Fetch(context.Context) ([]byte, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("offline")
	}
	return []byte(sampleCSV), nil
}
func (c *countingSource) Format() source.Format { return source.FormatCSV }
func (c *countingSource) String() string        { return "counting" }

func TestProvider_CachesAndServesStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	src := &countingSource{}
	p := NewProvider(NewLoader(src, Options{}, nil), 5*time.Minute, clock, nil)
	ctx := context.Background()

	assert.Equal(t, 3, p.Table(ctx).Len())
	assert.Equal(t, 3, p.Table(ctx).Len())
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, now.Add(5*time.Minute), p.ExpiresAt())

	now = now.Add(6 * time.Minute)
	src.fail = true
	tbl := p.Table(ctx)
	assert.True(t, tbl.Has("Cement"), "last good table is kept")
	assert.Equal(t, 2, src.calls)

	src.fail = false
	p.Invalidate()
	assert.True(t, p.Table(ctx).Has("Cement"))
	assert.Equal(t, 3, src.calls)
}

func TestProvider_FallbackWithoutGoodTable(t *testing.T) {
	src := &countingSource{fail: true}
	p := NewProvider(NewLoader(src, Options{}, nil), time.Minute, nil, nil)
	ctx := context.Background()

	assert.Equal(t, Fallback().Categories(), p.Table(ctx).Categories())
	_ = p.Table(ctx)
	assert.Equal(t, 2, src.calls, "fallback is not cached")
}
