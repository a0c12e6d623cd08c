package source

import (
	"bytes"
	"context"
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
)

func TestNew_PicksSource(t *testing.T) {
	s, err := New("https://docs.google.com/spreadsheets/d/e/x/pub?output=xlsx", time.Second, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, s)
	assert.Equal(t, FormatXLSX, s.Format())
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/e/x/pub", s.String())

	s, err = New("https://example.com/pub?output=csv", time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, s.Format())

	s, err = New("./data/materials.XLSX", 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, s)
	assert.Equal(t, FormatXLSX, s.Format())

	_, err = New("  ", 0, nil)
	assert.Error(t, err)
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	raw, err := NewHTTPSource(srv.URL+"/ok", time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(raw))

	_, err = NewHTTPSource(srv.URL+"/missing", time.Second, nil).Fetch(context.Background())
	assert.ErrorContains(t, err, "404")
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(path, []byte("username\n"), 0o600))

	raw, err := (&FileSource{Path: path}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "username\n", string(raw))

	_, err = (&FileSource{Path: path + ".nope"}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestReadRows(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("a, b\n\"1,5\",2,extra\n"), FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1,5", "2", "extra"}}, rows)

	_, err = ReadRows(strings.NewReader(""), FormatCSV, "")
	assert.ErrorIs(t, err, ErrEmpty)

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "username"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "kim"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	rows, err = ReadRows(&buf, FormatXLSX, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"username"}, {"kim"}}, rows)
}
