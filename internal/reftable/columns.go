package reftable

import (
	"strings"
)

// columnMap holds resolved column indexes; -1 means the column is absent.
type columnMap struct {
	category      int
	hsCode        int
	exchangeRate  int
	optimized     int
	defaultFactor int
	carbonPrice   int
}

// resolveColumns maps drifting header names onto fields. Matching is on the
// trimmed, lowercased header. Fields are resolved in a fixed order (category,
// HS code, exchange rate, optimized, default, price) and a column claimed by
// an earlier field is not reused; within a field the leftmost match wins.
func resolveColumns(header []string) columnMap {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}
	claimed := make(map[int]bool, len(norm))

	find := func(match func(string) bool) int {
		for i, h := range norm {
			if claimed[i] || h == "" {
				continue
			}
			if match(h) {
				claimed[i] = true
				return i
			}
		}
		return -1
	}

	cm := columnMap{}
	cm.category = find(func(h string) bool { return h == "category" })
	if cm.category < 0 {
		cm.category = find(func(h string) bool { return strings.Contains(h, "category") })
	}
	if cm.category < 0 {
		cm.category = find(func(h string) bool { return strings.Contains(h, "material") })
	}
	if cm.category < 0 && len(norm) > 0 {
		cm.category = 0
		claimed[0] = true
	}
	cm.hsCode = find(func(h string) bool { return strings.Contains(h, "hs") && strings.Contains(h, "code") })
	cm.exchangeRate = find(func(h string) bool { return strings.Contains(h, "exch") && strings.Contains(h, "rate") })
	cm.optimized = find(func(h string) bool { return strings.Contains(h, "optim") })
	cm.defaultFactor = find(func(h string) bool { return strings.Contains(h, "default") })
	cm.carbonPrice = find(func(h string) bool { return strings.Contains(h, "price") })
	return cm
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

// cell returns the trimmed value at idx, or "" when the column is absent or
// the row is short.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
