package llm

// BuildItemsJSONSchema returns the JSON Schema (draft 2020-12 subset) the
// model reply must satisfy. Every item field is optional; missing names and
// weights are filled in downstream.
func BuildItemsJSONSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"item":     map[string]any{"type": "string"},
			"material": map[string]any{"type": "string"},
			"weight":   map[string]any{"type": "number"},
			"hs_code":  map[string]any{"type": "string", "pattern": `^\d{2,10}$`},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"items": map[string]any{"type": "array", "items": item},
		},
		"required": []string{"items"},
	}
}
