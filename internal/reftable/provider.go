package reftable

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/internal/cache"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

// Provider serves the current table from a TTL cache over a Loader. A failed
// refresh keeps serving the last good table; with no good table yet it
// serves Fallback and retries on the next call.
type Provider struct {
	loader *Loader
	cache  *cache.Cache[*Table]
	logger *slog.Logger
}

// NewProvider caches loader results for ttl. now may be nil.
func NewProvider(loader *Loader, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []cache.Option[*Table]{}
	if now != nil {
		opts = append(opts, cache.WithClock[*Table](now))
	}
	return &Provider{
		loader: loader,
		cache:  cache.New(ttl, loader.TryLoad, opts...),
		logger: logger,
	}
}

// Table returns the current table. It never returns nil.
func (p *Provider) Table(ctx context.Context) *Table {
	t, err := p.cache.Get(ctx)
	if err == nil {
		return t
	}
	if t != nil {
		p.logger.Warn("reftable.refresh.stale", "error", err, "categories", t.Len())
		return t
	}
	fb := Fallback()
	p.logger.Warn("reftable.load.fallback", "error", err, "categories", fb.Len())
	metrics.RecordTableLoad(metricsTable, "fallback", fb.Len())
	return fb
}

// Invalidate forces the next Table call to reload.
func (p *Provider) Invalidate() { p.cache.Invalidate() }

// ExpiresAt reports when the cached table goes stale.
func (p *Provider) ExpiresAt() time.Time { return p.cache.ExpiresAt() }

// Static is a fixed table, for the CLI and tests.
type Static struct{ T *Table }

func (s Static) Table(context.Context) *Table {
	if s.T == nil {
		return Fallback()
	}
	return s.T
}
