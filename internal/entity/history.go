package entity

import "github.com/google/uuid"

// HistoryEntry is a stored line item with the login and batch it came from.
type HistoryEntry struct {
	Username string    `json:"username"`
	BatchID  uuid.UUID `json:"batch_id"`
	LineItem
}
