package repository

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

type postgresHistory struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresHistory(pool *pgxpool.Pool, logger *slog.Logger) HistoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresHistory{pool: pool, logger: logger}
}

func (r *postgresHistory) Record(ctx context.Context, username string, batchID uuid.UUID, items []entity.LineItem) error {
	for _, li := range items {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO analysis_history(
		 id, username, batch_id, file_name, item_name, material, weight_kg, hs_code,
		 emission_factor, optimized_factor, baseline_tax, optimized_tax, savings,
		 exchange_rate, company, failed, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING`,
			rowID(li), username, batchID, li.FileName, li.ItemName, li.Material,
			li.WeightKg, li.HSCode, li.EmissionFactor, li.OptimizedFactor,
			li.BaselineTax, li.OptimizedTax, li.Savings, li.ExchangeRateApplied,
			li.Company, li.Failed, li.AnalyzedAt.UTC(),
		)
		if err != nil {
			r.logger.Error("failed to record history", "username", username, "batch_id", batchID, "error", err)
			return common.NewAppError("DB_ERROR", "record history", err)
		}
	}
	return nil
}

func (r *postgresHistory) List(ctx context.Context, username string, from, to *time.Time, limit int) ([]entity.HistoryEntry, error) {
	where := []string{"username = $1"}
	args := []any{username}
	if from != nil {
		args = append(args, from.UTC())
		where = append(where, "analyzed_at >= $"+strconv.Itoa(len(args)))
	}
	if to != nil {
		args = append(args, to.UTC())
		where = append(where, "analyzed_at <= $"+strconv.Itoa(len(args)))
	}
	args = append(args, listLimit(limit))

	rows, err := r.pool.Query(ctx, `
	SELECT id, username, batch_id, file_name, item_name, material, weight_kg, hs_code,
	 emission_factor, optimized_factor, baseline_tax, optimized_tax, savings,
	 exchange_rate, company, failed, analyzed_at
	FROM analysis_history
	WHERE `+strings.Join(where, " AND ")+`
	ORDER BY analyzed_at DESC, created_at DESC
	LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		r.logger.Error("failed to list history", "username", username, "error", err)
		return nil, common.NewAppError("DB_ERROR", "list history", err)
	}
	defer rows.Close()

	var out []entity.HistoryEntry
	for rows.Next() {
		var e entity.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.BatchID, &e.FileName, &e.ItemName, &e.Material,
			&e.WeightKg, &e.HSCode, &e.EmissionFactor, &e.OptimizedFactor,
			&e.BaselineTax, &e.OptimizedTax, &e.Savings, &e.ExchangeRateApplied,
			&e.Company, &e.Failed, &e.AnalyzedAt); err != nil {
			return nil, common.NewAppError("DB_ERROR", "scan history", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *postgresHistory) Close() error {
	r.pool.Close()
	return nil
}
