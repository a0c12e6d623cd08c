package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/cbam-tracker/constants"
)

var (
	reWeight = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([a-zA-Z]*)`)
	reDigits = regexp.MustCompile(`\D`)

	itemSynonyms = map[string]string{
		"name":          "item",
		"item_name":     "item",
		"product":       "item",
		"product_name":  "item",
		"goods":         "item",
		"category":      "material",
		"material_type": "material",
		"weight_kg":     "weight",
		"net_weight":    "weight",
		"weight (kg)":   "weight",
		"mass":          "weight",
		"hs":            "hs_code",
		"hscode":        "hs_code",
		"hs code":       "hs_code",
		"cn_code":       "hs_code",
	}
	itemKeys = map[string]struct{}{"item": {}, "material": {}, "weight": {}, "hs_code": {}}
)

// NormalizeItemsJSON reshapes a loosely-formed reply so it can pass the
// items schema:
//   - a bare item object or array is wrapped into {"items": [...]}
//   - known synonyms are renamed (name -> item, weight_kg -> weight, ...)
//   - weights given as strings ("1,500 kg", "2 t") become kilograms
//   - null/empty optionals and unknown keys are dropped
//
// It returns the rewritten document and a list of what was dropped or
// changed.
func NormalizeItemsJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var changed []string
	var list []any
	wrappedRoot := false
	switch t := doc.(type) {
	case []any:
		list = t
		changed = append(changed, "items(wrapped_array)")
	case map[string]any:
		switch items := t["items"].(type) {
		case []any:
			list = items
		case map[string]any:
			list = []any{items}
			changed = append(changed, "items(wrapped_object)")
		case nil:
			if looksLikeItem(t) {
				list = []any{t}
				wrappedRoot = true
				changed = append(changed, "items(wrapped_root)")
				break
			}
			changed = append(changed, "items(missing)")
		default:
			changed = append(changed, "items(type)")
		}
		if wrappedRoot {
			break
		}
		for k := range t {
			if k != "items" {
				changed = append(changed, k+"(unknown)")
			}
		}
	default:
		return nil, nil, fmt.Errorf("sanitize: unexpected top-level %T", doc)
	}

	out := make([]map[string]any, 0, len(list))
	for i, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			changed = append(changed, fmt.Sprintf("items[%d](type)", i))
			continue
		}
		out = append(out, sanitizeItem(m, i, &changed))
	}

	b, err := json.Marshal(map[string]any{"items": out})
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "changed", changed)
	}
	return b, changed, nil
}

func looksLikeItem(m map[string]any) bool {
	for k := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, ok := itemKeys[key]; ok {
			return true
		}
		if _, ok := itemSynonyms[key]; ok {
			return true
		}
	}
	return false
}

func sanitizeItem(in map[string]any, idx int, changed *[]string) map[string]any {
	note := func(what string) { *changed = append(*changed, fmt.Sprintf("items[%d].%s", idx, what)) }

	m := make(map[string]any, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if to, ok := itemSynonyms[key]; ok {
			if _, exists := in[to]; exists {
				note(k + "(shadowed)")
				continue
			}
			note(k + "->" + to)
			key = to
		}
		if _, ok := itemKeys[key]; !ok {
			note(k + "(unknown)")
			continue
		}
		m[key] = v
	}

	for _, k := range []string{"item", "material"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				m[k] = s
				continue
			}
		case float64:
			m[k] = strconv.FormatFloat(t, 'f', -1, 64)
			continue
		}
		delete(m, k)
		note(k + "(empty)")
	}

	if v, ok := m["weight"]; ok {
		if _, isNum := v.(float64); !isNum {
			if v == nil {
				delete(m, "weight")
				note("weight(null)")
			} else {
				m["weight"] = ParseWeight(v)
				note("weight(coerced)")
			}
		}
	}

	if v, ok := m["hs_code"]; ok {
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		}
		s = strings.TrimSpace(s)
		if head, frac, found := strings.Cut(s, "."); found && strings.Trim(frac, "0") == "" {
			s = head
		}
		s = reDigits.ReplaceAllString(s, "")
		if len(s) < 2 || len(s) > 10 {
			delete(m, "hs_code")
			note("hs_code(dropped)")
		} else {
			m["hs_code"] = s
		}
	}
	return m
}

// ParseWeight turns a model-supplied weight into kilograms. Strings may
// carry thousands separators and a unit (g, kg, t/ton/tonne, lb). Anything
// unparseable yields 0.
func ParseWeight(v any) float64 {
	switch t := v.(type) {
	case float64:
		return finite(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		return parseWeightString(t)
	}
	return 0
}

func parseWeightString(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	m := reWeight.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "g", "gr", "gram", "grams":
		f /= 1000
	case "t", "ton", "tons", "tonne", "tonnes", "mt":
		f *= 1000
	case "lb", "lbs":
		f *= 0.45359237
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// DecodeItems validates a reply strictly, falls back to NormalizeItemsJSON
// and a second validation, then decodes the items. Missing item names are
// filled with the unidentified placeholder and missing materials with
// "Other". The returned bytes are the document that was decoded.
func DecodeItems(raw []byte, logger *slog.Logger) ([]RawItem, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc := raw
	if err := ValidateItemsJSON(doc); err != nil {
		cleaned, changed, sErr := NormalizeItemsJSON(doc, logger)
		if sErr != nil {
			return nil, raw, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := ValidateItemsJSON(cleaned); vErr != nil {
			return nil, cleaned, fmt.Errorf("schema validation failed: %w", vErr)
		}
		logger.Warn("llm.extract.lenient_sanitize_applied", "changed", changed)
		doc = cleaned
	}

	var out struct {
		Items []RawItem `json:"items"`
	}
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, doc, fmt.Errorf("unmarshal items: %w", err)
	}
	for i := range out.Items {
		it := &out.Items[i]
		it.Item = strings.TrimSpace(it.Item)
		it.Material = strings.TrimSpace(it.Material)
		if it.Item == "" {
			it.Item = constants.Unidentified
		}
		if it.Material == "" {
			it.Material = constants.OtherCategory
		}
	}
	return out.Items, doc, nil
}
