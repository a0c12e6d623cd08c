package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
)

// Upload is one image submitted for analysis.
type Upload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// ExtractStage guards and runs the vision call for one upload.
type ExtractStage struct {
	Extractor  llm.ItemExtractor
	MaxImageMB int
	Logger     *slog.Logger
}

func NewExtractStage(ex llm.ItemExtractor, maxImageMB int, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	if maxImageMB <= 0 {
		maxImageMB = constants.MaxImageMBDefault
	}
	return &ExtractStage{Extractor: ex, MaxImageMB: maxImageMB, Logger: logger}
}

// Run returns the raw items for up. An error means the image should be
// reported as a failed line; an empty slice is also a failure to the caller.
func (s *ExtractStage) Run(ctx context.Context, up Upload, categories []string) ([]llm.RawItem, error) {
	if s == nil || s.Extractor == nil {
		return nil, fmt.Errorf("no extractor configured")
	}
	if len(up.Data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	if llm.ImageTooLarge(up.Data, s.MaxImageMB) {
		return nil, fmt.Errorf("image exceeds %d MB", s.MaxImageMB)
	}
	mimeType := up.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = llm.DetectMIME(up.Filename, up.Data)
	}

	items, _, err := s.Extractor.ExtractItems(ctx, llm.ExtractRequest{
		Image:      up.Data,
		MIMEType:   mimeType,
		Filename:   up.Filename,
		Categories: categories,
	})
	if err != nil {
		return nil, fmt.Errorf("%s extract: %w", s.Extractor.Backend(), err)
	}
	return items, nil
}
