package reftable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
	"github.com/joseph-ayodele/cbam-tracker/internal/source"
)

const metricsTable = "materials"

// ErrNoRows is returned when a source parses but yields no usable category.
var ErrNoRows = errors.New("reference table has no usable rows")

// Loader reads the reference table from a Source.
type Loader struct {
	Source  source.Source
	Sheet   string
	Options Options
	Logger  *slog.Logger
}

// NewLoader returns a Loader for src.
func NewLoader(src source.Source, opts Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Source: src, Options: opts, Logger: logger}
}

// Load never fails: any fetch or parse problem is logged and the built-in
// fallback table is returned instead.
func (l *Loader) Load(ctx context.Context) *Table {
	t, err := l.TryLoad(ctx)
	if err != nil {
		fb := Fallback()
		l.logger().Warn("reftable.load.fallback", "source", l.sourceName(), "error", err, "categories", fb.Len())
		metrics.RecordTableLoad(metricsTable, "fallback", fb.Len())
		return fb
	}
	return t
}

// TryLoad is Load without the fallback, for callers that need to know.
func (l *Loader) TryLoad(ctx context.Context) (*Table, error) {
	logger := l.logger()
	if l.Source == nil {
		return nil, fmt.Errorf("no reference table source configured")
	}
	start := time.Now()
	logger.Info("reftable.load.start", "source", l.Source.String(), "format", l.Source.Format())

	raw, err := l.Source.Fetch(ctx)
	if err != nil {
		metrics.RecordTableLoad(metricsTable, "fetch_error", 0)
		return nil, fmt.Errorf("fetch reference table: %w", err)
	}

	t, err := parse(bytes.NewReader(raw), l.Source.Format(), l.Sheet, l.Options, logger)
	if err != nil {
		metrics.RecordTableLoad(metricsTable, "parse_error", 0)
		return nil, fmt.Errorf("parse reference table: %w", err)
	}
	if t.Len() == 0 {
		metrics.RecordTableLoad(metricsTable, "empty", 0)
		return nil, ErrNoRows
	}

	metrics.RecordTableLoad(metricsTable, "ok", t.Len())
	logger.Info("reftable.load.ok",
		"source", l.Source.String(),
		"categories", t.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return t, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loader) sourceName() string {
	if l.Source == nil {
		return ""
	}
	return l.Source.String()
}
