package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// HistoryRepository stores analyzed line items per login.
type HistoryRepository interface {
	// Record inserts one row per item. Rows already written stay written when
	// a later insert fails.
	Record(ctx context.Context, username string, batchID uuid.UUID, items []entity.LineItem) error
	// List returns the newest entries first, bounded by the optional window.
	List(ctx context.Context, username string, from, to *time.Time, limit int) ([]entity.HistoryEntry, error)
	Close() error
}

// Noop is the store used when no database is configured.
type Noop struct{}

func (Noop) Record(context.Context, string, uuid.UUID, []entity.LineItem) error { return nil }

func (Noop) List(context.Context, string, *time.Time, *time.Time, int) ([]entity.HistoryEntry, error) {
	return nil, nil
}

func (Noop) Close() error { return nil }

// IsEnabled reports whether repo persists anything.
func IsEnabled(repo HistoryRepository) bool {
	if repo == nil {
		return false
	}
	_, noop := repo.(Noop)
	return !noop
}

func rowID(li entity.LineItem) uuid.UUID {
	if li.ID == uuid.Nil {
		return uuid.New()
	}
	return li.ID
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
