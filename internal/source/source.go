// Package source fetches the published spreadsheets (reference table and
// credential table) from a URL or a local file.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Format is the on-the-wire layout of a sheet.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// maxBodyBytes caps a fetched sheet.
const maxBodyBytes = 16 << 20

// Source yields the raw bytes of one sheet.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Format() Format
	String() string
}

// New picks an HTTPSource for http(s) locations and a FileSource otherwise.
func New(location string, timeout time.Duration, logger *slog.Logger) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("source location is empty")
	}
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return NewHTTPSource(location, timeout, logger), nil
	}
	return &FileSource{Path: location}, nil
}

// HTTPSource downloads a published sheet export.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

// NewHTTPSource returns an HTTPSource with a client bounded by timeout.
func NewHTTPSource(rawURL string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		URL:    rawURL,
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Warn("source.http.send_error", "req_id", reqID, "url", redact(s.URL), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("fetch %s: %w", redact(s.URL), err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.Logger.Warn("source.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	s.Logger.Debug("source.http.response",
		"req_id", reqID,
		"url", redact(s.URL),
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: non-2xx status: %d", redact(s.URL), resp.StatusCode)
	}
	return raw, nil
}

// Format reads the export format from the URL (Google Sheets style
// output=xlsx / format=xlsx, or an .xlsx path) and defaults to CSV.
func (s *HTTPSource) Format() Format {
	u, err := url.Parse(s.URL)
	if err != nil {
		return FormatCSV
	}
	q := u.Query()
	if strings.EqualFold(q.Get("output"), "xlsx") || strings.EqualFold(q.Get("format"), "xlsx") {
		return FormatXLSX
	}
	if strings.EqualFold(filepath.Ext(u.Path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

func (s *HTTPSource) String() string { return redact(s.URL) }

// FileSource reads a local .csv or .xlsx file.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return raw, nil
}

func (s *FileSource) Format() Format {
	if strings.EqualFold(filepath.Ext(s.Path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

func (s *FileSource) String() string { return s.Path }

// redact drops the query string, which for published sheets can carry keys.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
