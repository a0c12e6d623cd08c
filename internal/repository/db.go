package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
)

type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ConfigFrom copies the database section of the app config.
func ConfigFrom(c common.DatabaseConfig) Config {
	return Config{
		DSN:             c.DSN,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
		DialTimeout:     c.DialTimeout,
	}
}

// Dialect names a supported backend.
type Dialect string

const (
	DialectNone     Dialect = ""
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DialectOf picks the backend from the DSN scheme. postgres:// and
// postgresql:// go to pgx; sqlite://, file: and bare paths go to sqlite.
func DialectOf(dsn string) Dialect {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return DialectNone
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

// sqlitePath strips the URL forms down to what the driver opens.
func sqlitePath(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if p, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		return p
	}
	return strings.TrimPrefix(dsn, "file:")
}

// Open connects the history store named by cfg.DSN and applies migrations.
// An empty DSN yields a no-op store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (HistoryRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialect := DialectOf(cfg.DSN)
	if dialect == DialectNone {
		logger.Info("history store disabled")
		return Noop{}, nil
	}

	if err := Migrate(cfg.DSN, logger); err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		pool, err := openPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewPostgresHistory(pool, logger), nil
	default:
		return OpenSQLiteHistory(sqlitePath(cfg.DSN), logger)
	}
}

// openPool creates a pgx pool with the configured limits.
func openPool(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database", "dialect", DialectPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewAppError("DB_ERROR", "parse database dsn", common.ErrDatabase)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "cbam-tracker"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewAppError("DB_ERROR", "connect to database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("database ping failed", "error", err)
		return nil, common.NewAppError("DB_ERROR", "ping database", err)
	}

	logger.Info("successfully connected to database")
	return pool, nil
}
