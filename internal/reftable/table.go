// Package reftable loads the category -> emission factor / HS code / exchange
// rate table that every estimate is computed from.
package reftable

import (
	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

// Table is an ordered category mapping. Order is the source row order and is
// what "first entry" means for the calculator fallback. A nil *Table behaves
// as an empty table.
type Table struct {
	order   []string
	records map[string]entity.MaterialRecord
}

// NewTable builds a table from records in the given order.
func NewTable(records ...entity.MaterialRecord) *Table {
	t := &Table{records: make(map[string]entity.MaterialRecord, len(records))}
	for _, rec := range records {
		t.Put(rec)
	}
	return t
}

// Put inserts or replaces a record. A replaced record keeps its original
// position. It reports whether the category already existed.
func (t *Table) Put(rec entity.MaterialRecord) bool {
	if t.records == nil {
		t.records = make(map[string]entity.MaterialRecord)
	}
	_, exists := t.records[rec.Category]
	if !exists {
		t.order = append(t.order, rec.Category)
	}
	t.records[rec.Category] = rec
	return exists
}

// Get looks a category up by exact, case-sensitive key.
func (t *Table) Get(category string) (entity.MaterialRecord, bool) {
	if t == nil {
		return entity.MaterialRecord{}, false
	}
	rec, ok := t.records[category]
	return rec, ok
}

// First returns the first record in source order.
func (t *Table) First() (entity.MaterialRecord, bool) {
	if t == nil || len(t.order) == 0 {
		return entity.MaterialRecord{}, false
	}
	return t.records[t.order[0]], true
}

// Len returns the number of categories.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Categories returns the category keys in source order.
func (t *Table) Categories() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Records returns the records in source order.
func (t *Table) Records() []entity.MaterialRecord {
	if t == nil {
		return nil
	}
	out := make([]entity.MaterialRecord, 0, len(t.order))
	for _, cat := range t.order {
		out = append(out, t.records[cat])
	}
	return out
}

// Has reports whether category is a key of the table.
func (t *Table) Has(category string) bool {
	_, ok := t.Get(category)
	return ok
}

// CategoriesWithOther returns the category list guaranteed to contain the
// exempt bucket, for selection lists and prompts.
func (t *Table) CategoriesWithOther() []string {
	cats := t.Categories()
	if !t.Has(constants.OtherCategory) {
		cats = append(cats, constants.OtherCategory)
	}
	return cats
}

// DisplayExchangeRate is the rate shown as the current conversion banner:
// the Iron/Steel row when present, else the first row, else the default.
func (t *Table) DisplayExchangeRate() float64 {
	if rec, ok := t.Get(constants.FallbackDisplayCategory); ok && rec.ExchangeRate > 0 {
		return rec.ExchangeRate
	}
	if rec, ok := t.First(); ok && rec.ExchangeRate > 0 {
		return rec.ExchangeRate
	}
	return constants.DefaultExchangeRate
}
