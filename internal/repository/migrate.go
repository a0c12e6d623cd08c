package repository

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// Migrate applies all up migrations for the DSN's dialect.
func Migrate(dsn string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	dialect := DialectOf(dsn)
	if dialect == DialectNone {
		return nil
	}
	start := time.Now()

	sub, err := fs.Sub(migrationFS, "migrations/"+string(dialect))
	if err != nil {
		return err
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dialect, dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	}
	if err != nil {
		logger.Error("repository.migrate.error", "dialect", dialect, "error", err)
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("repository.migrate.ok",
		"dialect", dialect,
		"version", version,
		"dirty", dirty,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// migrateURL rewrites the DSN to the scheme the migrate driver registers.
func migrateURL(dialect Dialect, dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch dialect {
	case DialectPostgres:
		if rest, ok := strings.CutPrefix(dsn, "postgresql://"); ok {
			return "pgx5://" + rest
		}
		return "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	default:
		return "sqlite://" + sqlitePath(dsn)
	}
}
