package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
)

func TestExtractItems_InlineData(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"`+
			"```json\\n{\\\"items\\\":[{\\\"item\\\":\\\"Ingot\\\",\\\"material\\\":\\\"Aluminum\\\",\\\"weight\\\":25}]}\\n```"+
			`"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-test"}, nil)
	items, _, err := c.ExtractItems(context.Background(), llm.ExtractRequest{
		Image:      []byte("\x89PNG\r\n\x1a\n"),
		Filename:   "ingot.png",
		Categories: []string{"Aluminum", "Other"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, llm.RawItem{Item: "Ingot", Material: "Aluminum", WeightKg: 25}, items[0])

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	assert.Equal(t, "image/png", inline["mime_type"])
	gen := got["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gen["responseMimeType"])
}

func TestExtractItems_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, _, err := c.ExtractItems(context.Background(), llm.ExtractRequest{Image: []byte("x")})
	assert.ErrorContains(t, err, "SAFETY")
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"items":[]}`, stripFence("```json\n{\"items\":[]}\n```"))
	assert.Equal(t, `{"items":[]}`, stripFence(`{"items":[]}`))
}
