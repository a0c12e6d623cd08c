package llm

import (
	"strings"

	"github.com/joseph-ayodele/cbam-tracker/constants"
)

// BuildSystemPrompt lists the allowed categories and the extraction rules.
func BuildSystemPrompt(categories []string) string {
	cats := categories
	if len(cats) == 0 {
		cats = []string{constants.OtherCategory}
	}
	parts := []string{
		"You are a CBAM (carbon border adjustment) classifier for product invoices and photos.",
		"Step 1: identify every distinct product item shown. Ignore packaging, pallets and shipping materials.",
		"Step 2: classify each item's material into exactly one of: " + strings.Join(cats, ", ") + ".",
		"Fish, food, wood, plastic, textile and anything else outside this list MUST be classified as \"Other\".",
		"Step 3: extract the net weight of each item and convert it to kilograms (a number, no unit).",
		"If a customs HS or CN code is printed for an item, include it as 'hs_code' (digits only); otherwise omit it.",
		`Return ONLY JSON of the form {"items":[{"item":"...","material":"...","weight":0,"hs_code":"..."}]}.`,
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint that accompanies the image.
func BuildUserPrompt(filename string) string {
	var b strings.Builder
	b.WriteString("Analyze this image.")
	if f := strings.TrimSpace(filename); f != "" {
		b.WriteString("\nFilename: ")
		b.WriteString(f)
	}
	return b.String()
}
