// Package resolver snaps free-text material labels onto a category of the
// reference table.
package resolver

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

// Resolution steps, used as the metrics label.
const (
	StepExact   = "exact"
	StepKeyword = "keyword"
	StepFuzzy   = "fuzzy"
	StepDefault = "default"
)

// Resolver is safe for concurrent use; its rules are fixed at construction.
type Resolver struct {
	rules     []Rule
	threshold float64
	logger    *slog.Logger
}

// New returns a Resolver over rules; nil rules means DefaultRules.
func New(rules []Rule, logger *slog.Logger) *Resolver {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{rules: rules, threshold: constants.FuzzyThreshold, logger: logger}
}

// Resolve returns a member of known, or "Other".
func (r *Resolver) Resolve(itemName, guess string, known []string) string {
	cat, step := r.ResolveStep(itemName, guess, known)
	metrics.ResolutionsTotal.WithLabelValues(step).Inc()
	return cat
}

// ResolveStep is Resolve plus the step that produced the answer.
func (r *Resolver) ResolveStep(itemName, guess string, known []string) (string, string) {
	trimmed := strings.TrimSpace(guess)
	for _, cat := range known {
		if cat == trimmed && cat != "" {
			return cat, StepExact
		}
	}

	text := strings.ToLower(itemName) + " " + strings.ToLower(guess)
	for _, rule := range r.rules {
		if !rule.triggered(text) {
			continue
		}
		cands := rule.candidates(known)
		if len(cands) == 0 {
			continue
		}
		pick := cands[0]
		if rule.Refine != nil {
			pick = rule.Refine.pick(text, cands, rule.FoldCase)
		}
		r.logger.Debug("resolver.keyword", "rule", rule.Name, "item", itemName, "guess", guess, "category", pick)
		return pick, StepKeyword
	}

	if cat, score := bestMatch(trimmed, known); score >= r.threshold {
		r.logger.Debug("resolver.fuzzy", "guess", guess, "category", cat, "score", score)
		return cat, StepFuzzy
	}
	return constants.OtherCategory, StepDefault
}

// Similarity is 1 - editDistance/maxLen on lowercased runes; 1.0 is equal.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}

// bestMatch returns the highest-scoring known category; ties go to the
// earlier one.
func bestMatch(guess string, known []string) (string, float64) {
	if guess == "" {
		return "", 0
	}
	best, bestScore := "", -1.0
	for _, cat := range known {
		if s := Similarity(guess, cat); s > bestScore {
			best, bestScore = cat, s
		}
	}
	return best, bestScore
}
