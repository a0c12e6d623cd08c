package llm

import "strings"

// Provider names accepted by configuration.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// NormalizeProvider lowercases a provider name and defaults to OpenAI.
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProviderOpenAI
	}
	return p
}
