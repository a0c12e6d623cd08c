package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

// ExtractItems implements llm.ItemExtractor with a single vision
// chat/completions call in JSON mode.
func (c *Client) ExtractItems(ctx context.Context, req llm.ExtractRequest) ([]llm.RawItem, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	items, raw, err := c.extract(ctx, rid, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordExtraction(c.Backend(), outcome, time.Since(start))
	if err != nil {
		c.logger.Error("llm.extract.failed",
			"req_id", rid, "file", req.Filename, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, err
	}
	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"file", req.Filename,
		"items", len(items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return items, raw, nil
}

func (c *Client) extract(ctx context.Context, rid string, req llm.ExtractRequest) ([]llm.RawItem, []byte, error) {
	if len(req.Image) == 0 {
		return nil, nil, fmt.Errorf("empty image")
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = llm.DetectMIME(req.Filename, req.Image)
	}

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"backend", c.Backend(),
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"file", req.Filename,
		"mime", mimeType,
		"image_bytes", len(req.Image),
		"categories", len(req.Categories),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(req.Categories)},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": llm.BuildUserPrompt(req.Filename)},
				{"type": "image_url", "image_url": map[string]any{
					"url":    llm.DataURL(mimeType, req.Image),
					"detail": c.cfg.Detail,
				}},
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return nil, raw, fmt.Errorf("openai request: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, raw, fmt.Errorf("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return nil, raw, fmt.Errorf("empty content (finish_reason=%s)", cc.Choices[0].FinishReason)
	}
	return llm.DecodeItems([]byte(content), c.logger)
}
