package llm

import "context"

// RawItem is one product as reported by the vision model, before the
// material is resolved against the reference table.
type RawItem struct {
	Item     string  `json:"item"`
	Material string  `json:"material"`
	WeightKg float64 `json:"weight"`
	HSCode   string  `json:"hs_code,omitempty"`
}

// ExtractRequest carries one image and the categories the model may pick.
type ExtractRequest struct {
	Image      []byte
	MIMEType   string
	Filename   string
	Categories []string
}

// ItemExtractor is the interface the pipeline depends on.
type ItemExtractor interface {
	ExtractItems(ctx context.Context, req ExtractRequest) ([]RawItem, []byte /*rawJSON*/, error)
	Backend() string
}
