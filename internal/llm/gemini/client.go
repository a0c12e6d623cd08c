// Package gemini is an alternate vision backend using the Gemini
// generateContent API.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	BaseURL     string // default https://generativelanguage.googleapis.com/v1beta
	Model       string // e.g. "gemini-1.5-flash"
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Backend() string { return "gemini" }

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// ExtractItems implements llm.ItemExtractor.
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
		"req_id", rid, "file", req.Filename, "items", len(items),
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
		"file", req.Filename,
		"mime", mimeType,
		"image_bytes", len(req.Image),
	)

	body := map[string]any{
		"systemInstruction": content{Parts: []part{{Text: llm.BuildSystemPrompt(req.Categories)}}},
		"contents": []content{{
			Role: "user",
			Parts: []part{
				{Text: llm.BuildUserPrompt(req.Filename)},
				{InlineData: &inlineData{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(req.Image)}},
			},
		}},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"responseMimeType": "application/json",
		},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Model))
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return nil, raw, fmt.Errorf("gemini request: %w", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, raw, fmt.Errorf("decode gemini response: %w", err)
	}
	if gr.PromptFeedback.BlockReason != "" {
		return nil, raw, fmt.Errorf("prompt blocked: %s", gr.PromptFeedback.BlockReason)
	}
	if len(gr.Candidates) == 0 {
		return nil, raw, fmt.Errorf("no candidates in gemini response")
	}
	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, raw, fmt.Errorf("empty content (finishReason=%s)", gr.Candidates[0].FinishReason)
	}
	return llm.DecodeItems([]byte(stripFence(text)), c.logger)
}

// stripFence removes a ```json fence some models wrap around JSON output.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
