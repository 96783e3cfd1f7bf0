package llm

import (
	"log"
	"strings"

	"github.com/TobiSchelling/intelbrief/internal/config"
)

// CreateProvider returns the configured provider, falling back to any other
// provider whose credentials are available. It returns nil when none is usable
// or when the provider is "none".
func CreateProvider(s config.Summarization) Provider {
	preferred := strings.ToLower(strings.TrimSpace(s.Provider))
	if preferred == "none" || preferred == "fallback" {
		log.Println("Language model disabled; narratives will use the fallback generator")
		return nil
	}

	candidates := []struct {
		name  string
		model string
		build func() Provider
	}{
		{"ollama", s.Model, func() Provider { return NewOllamaProvider(s.Model, s.OllamaURL) }},
		{"openai", s.OpenAIModel, func() Provider { return NewOpenAIProvider(s.OpenAIModel, s.APIKeyEnv) }},
		{"gemini", s.GeminiModel, func() Provider { return NewGeminiProvider(s.GeminiModel, s.GeminiAPIKeyEnv) }},
		{"anthropic", s.AnthropicModel, func() Provider { return NewAnthropicProvider(s.AnthropicModel, s.AnthropicKeyEnv) }},
	}

	// Try the preferred provider first, then the key-based ones in order.
	for i, c := range candidates {
		if c.name == preferred && i > 0 {
			candidates[0], candidates[i] = candidates[i], candidates[0]
			break
		}
	}
	for i, c := range candidates {
		if i > 0 && c.name == "ollama" {
			continue
		}
		p := c.build()
		if p.IsConfigured() {
			log.Printf("Using %s with model: %s", c.name, c.model)
			return p
		}
		if i == 0 {
			log.Printf("%s not available, trying fallbacks...", c.name)
		}
	}

	log.Println("No LLM provider available. Check Ollama is running or set an API key.")
	return nil
}
