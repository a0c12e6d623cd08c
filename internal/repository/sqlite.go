package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

// sqliteTime is fixed width so text comparison orders like time.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

type sqliteHistory struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteHistory opens the database file at path. The schema must already
// be migrated.
func OpenSQLiteHistory(path string, logger *slog.Logger) (HistoryRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "open sqlite", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	return NewSQLiteHistory(db, logger), nil
}

func NewSQLiteHistory(db *sql.DB, logger *slog.Logger) HistoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteHistory{db: db, logger: logger}
}

func (r *sqliteHistory) Record(ctx context.Context, username string, batchID uuid.UUID, items []entity.LineItem) error {
	for _, li := range items {
		_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_history(
		 id, username, batch_id, file_name, item_name, material, weight_kg, hs_code,
		 emission_factor, optimized_factor, baseline_tax, optimized_tax, savings,
		 exchange_rate, company, failed, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING;
		`,
			rowID(li).String(), username, batchID.String(), li.FileName, li.ItemName, li.Material,
			li.WeightKg, li.HSCode, li.EmissionFactor, li.OptimizedFactor,
			li.BaselineTax, li.OptimizedTax, li.Savings, li.ExchangeRateApplied,
			li.Company, li.Failed, li.AnalyzedAt.UTC().Format(sqliteTime),
		)
		if err != nil {
			r.logger.Error("failed to record history", "username", username, "batch_id", batchID, "error", err)
			return common.NewAppError("DB_ERROR", "record history", err)
		}
	}
	return nil
}

func (r *sqliteHistory) List(ctx context.Context, username string, from, to *time.Time, limit int) ([]entity.HistoryEntry, error) {
	var (
		where = []string{"username = ?"}
		args  = []any{username}
	)
	if from != nil {
		where = append(where, "analyzed_at >= ?")
		args = append(args, from.UTC().Format(sqliteTime))
	}
	if to != nil {
		where = append(where, "analyzed_at <= ?")
		args = append(args, to.UTC().Format(sqliteTime))
	}
	args = append(args, listLimit(limit))

	rows, err := r.db.QueryContext(ctx, `
	SELECT id, username, batch_id, file_name, item_name, material, weight_kg, hs_code,
	 emission_factor, optimized_factor, baseline_tax, optimized_tax, savings,
	 exchange_rate, company, failed, analyzed_at
	FROM analysis_history
	WHERE `+strings.Join(where, " AND ")+`
	ORDER BY analyzed_at DESC, created_at DESC
	LIMIT ?`, args...)
	if err != nil {
		r.logger.Error("failed to list history", "username", username, "error", err)
		return nil, common.NewAppError("DB_ERROR", "list history", err)
	}
	defer rows.Close()

	var out []entity.HistoryEntry
	for rows.Next() {
		var (
			e          entity.HistoryEntry
			id, batch  string
			analyzedAt string
		)
		if err := rows.Scan(&id, &e.Username, &batch, &e.FileName, &e.ItemName, &e.Material,
			&e.WeightKg, &e.HSCode, &e.EmissionFactor, &e.OptimizedFactor,
			&e.BaselineTax, &e.OptimizedTax, &e.Savings, &e.ExchangeRateApplied,
			&e.Company, &e.Failed, &analyzedAt); err != nil {
			return nil, common.NewAppError("DB_ERROR", "scan history", err)
		}
		e.ID, _ = uuid.Parse(id)
		e.BatchID, _ = uuid.Parse(batch)
		e.AnalyzedAt, _ = time.Parse(sqliteTime, analyzedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *sqliteHistory) Close() error {
	return r.db.Close()
}
