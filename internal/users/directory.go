// Package users reads the published credential table and answers login and
// credit questions against it. The table is read-only from here.
package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/cache"
	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
	"github.com/joseph-ayodele/cbam-tracker/internal/source"
)

const metricsTable = "users"

type record struct {
	username string
	password string
	active   string
	credits  int
}

// Directory is a cached view of the credential table.
type Directory struct {
	src    source.Source
	cache  *cache.Cache[map[string]record]
	logger *slog.Logger
}

// NewDirectory caches src for ttl. now may be nil.
func NewDirectory(src source.Source, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{src: src, logger: logger}
	var opts []cache.Option[map[string]record]
	if now != nil {
		opts = append(opts, cache.WithClock[map[string]record](now))
	}
	d.cache = cache.New(ttl, d.load, opts...)
	return d
}

func (d *Directory) load(ctx context.Context) (map[string]record, error) {
	start := time.Now()
	raw, err := d.src.Fetch(ctx)
	if err != nil {
		metrics.RecordTableLoad(metricsTable, "fetch_error", 0)
		return nil, fmt.Errorf("fetch user table: %w", err)
	}
	rows, err := source.ReadRows(bytes.NewReader(raw), d.src.Format(), "")
	if err != nil {
		metrics.RecordTableLoad(metricsTable, "parse_error", 0)
		return nil, fmt.Errorf("parse user table: %w", err)
	}
	users, err := parseRows(rows)
	if err != nil {
		metrics.RecordTableLoad(metricsTable, "parse_error", 0)
		return nil, err
	}
	metrics.RecordTableLoad(metricsTable, "ok", len(users))
	d.logger.Info("users.load.ok", "source", d.src.String(), "users", len(users), "elapsed_ms", time.Since(start).Milliseconds())
	return users, nil
}

func parseRows(rows [][]string) (map[string]record, error) {
	idx := map[string]int{}
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	for _, col := range []string{"username", "password", "active"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("user table missing %q column", col)
		}
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make(map[string]record, len(rows)-1)
	for _, row := range rows[1:] {
		u := get(row, "username")
		if u == "" {
			continue
		}
		out[u] = record{
			username: u,
			password: get(row, "password"),
			active:   strings.ToLower(get(row, "active")),
			credits:  parseCredits(get(row, "credits")),
		}
	}
	return out, nil
}

// ErrDirectoryUnavailable means the credential table could not be read.
var ErrDirectoryUnavailable = common.NewAppError("UNAVAILABLE", "system DB connection failed", common.ErrUnavailable)

func (d *Directory) snapshot(ctx context.Context) (map[string]record, error) {
	users, err := d.cache.Get(ctx)
	if err != nil && users == nil {
		d.logger.Error("users.load.failed", "source", d.src.String(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if err != nil {
		d.logger.Warn("users.refresh.stale", "error", err)
	}
	return users, nil
}

// Authenticate checks username and password against an active row.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (entity.Account, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	users, err := d.snapshot(ctx)
	if err != nil {
		return entity.Account{}, err
	}
	rec, ok := users[username]
	if !ok || username == "" || rec.password != password || rec.active != constants.ActiveFlag {
		d.logger.Info("users.login.rejected", "username", username, "known", ok)
		return entity.Account{}, common.NewAppError("UNAUTHORIZED", "login failed: check account details", common.ErrUnauthorized)
	}
	return rec.account(), nil
}

// Lookup returns the current account row for username.
func (d *Directory) Lookup(ctx context.Context, username string) (entity.Account, error) {
	users, err := d.snapshot(ctx)
	if err != nil {
		return entity.Account{}, err
	}
	rec, ok := users[strings.TrimSpace(username)]
	if !ok {
		return entity.Account{}, common.NotFoundError("user not found")
	}
	return rec.account(), nil
}

// Refresh drops the cached table.
func (d *Directory) Refresh() { d.cache.Invalidate() }

func (r record) account() entity.Account {
	return entity.Account{
		Username: r.username,
		Active:   r.active == constants.ActiveFlag,
		Credits:  r.credits,
	}
}

// IsUnavailable reports whether err came from an unreadable table.
func IsUnavailable(err error) bool { return errors.Is(err, common.ErrUnavailable) }

// parseCredits truncates numeric cells ("5.5" -> 5, "1,000" -> 1000);
// anything unparseable, non-finite or negative is 0.
func parseCredits(s string) int {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
