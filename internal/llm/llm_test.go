package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TobiSchelling/intelbrief/internal/config"
)

func TestCleanResponsePlain(t *testing.T) {
	if got := CleanResponse("  A briefing.  \n"); got != "A briefing." {
		t.Errorf("expected trimmed text, got %q", got)
	}
}

func TestCleanResponseWithCodeFence(t *testing.T) {
	text := "```markdown\nParagraph one.\n\nParagraph two.\n```"
	if got := CleanResponse(text); got != "Paragraph one.\n\nParagraph two." {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCleanResponseUnterminatedFence(t *testing.T) {
	if got := CleanResponse("```\nBody"); got != "Body" {
		t.Errorf("expected 'Body', got %q", got)
	}
}

func TestCleanResponseEmpty(t *testing.T) {
	if got := CleanResponse("   "); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "qwen2.5:7b"}},
			})
		case "/api/chat":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != "qwen2.5:7b" {
				t.Errorf("unexpected model %v", body["model"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"content": "Narrative text"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider("qwen2.5:7b", srv.URL)
	if !p.IsConfigured() {
		t.Fatal("expected provider to be configured")
	}
	got, err := p.Generate(context.Background(), "prompt", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Narrative text" {
		t.Errorf("expected 'Narrative text', got %q", got)
	}
}

func TestOllamaMissingModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{{"name": "llama3"}}})
	}))
	defer srv.Close()

	if NewOllamaProvider("qwen2.5:7b", srv.URL).IsConfigured() {
		t.Error("expected provider without the model to be unconfigured")
	}
}

func TestOpenAIGenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota"}`))
	}))
	defer srv.Close()

	t.Setenv("INTELBRIEF_TEST_OPENAI", "test-key")
	p := NewOpenAIProvider("gpt-4o-mini", "INTELBRIEF_TEST_OPENAI")
	p.BaseURL = srv.URL
	if _, err := p.Generate(context.Background(), "prompt", 100); err == nil {
		t.Error("expected error for 429 response")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "Assessment"}}},
		})
	}))
	defer srv.Close()

	t.Setenv("INTELBRIEF_TEST_OPENAI", "test-key")
	p := NewOpenAIProvider("gpt-4o-mini", "INTELBRIEF_TEST_OPENAI")
	p.BaseURL = srv.URL
	got, err := p.Generate(context.Background(), "prompt", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Assessment" {
		t.Errorf("expected 'Assessment', got %q", got)
	}
}

func TestKeyBasedProvidersUnconfiguredWithoutKey(t *testing.T) {
	t.Setenv("INTELBRIEF_TEST_EMPTY", "")
	providers := []Provider{
		NewOpenAIProvider("m", "INTELBRIEF_TEST_EMPTY"),
		NewGeminiProvider("m", "INTELBRIEF_TEST_EMPTY"),
		NewAnthropicProvider("m", "INTELBRIEF_TEST_EMPTY"),
	}
	for _, p := range providers {
		if p.IsConfigured() {
			t.Errorf("%T: expected unconfigured", p)
		}
		if _, err := p.Generate(context.Background(), "prompt", 10); err == nil {
			t.Errorf("%T: expected error without key", p)
		}
	}
}

func TestCreateProviderNone(t *testing.T) {
	if p := CreateProvider(config.Summarization{Provider: "none"}); p != nil {
		t.Errorf("expected nil provider, got %T", p)
	}
}

func TestCreateProviderPrefersConfiguredKey(t *testing.T) {
	t.Setenv("INTELBRIEF_TEST_GEMINI", "g-key")
	t.Setenv("INTELBRIEF_TEST_EMPTY", "")
	p := CreateProvider(config.Summarization{
		Provider:        "gemini",
		GeminiModel:     "gemini-1.5-flash",
		GeminiAPIKeyEnv: "INTELBRIEF_TEST_GEMINI",
		APIKeyEnv:       "INTELBRIEF_TEST_EMPTY",
		AnthropicKeyEnv: "INTELBRIEF_TEST_EMPTY",
	})
	if _, ok := p.(*GeminiProvider); !ok {
		t.Errorf("expected Gemini provider, got %T", p)
	}
}

func TestCreateProviderFallsBackToKey(t *testing.T) {
	t.Setenv("INTELBRIEF_TEST_ANTHROPIC", "a-key")
	t.Setenv("INTELBRIEF_TEST_EMPTY", "")
	p := CreateProvider(config.Summarization{
		Provider:        "openai",
		APIKeyEnv:       "INTELBRIEF_TEST_EMPTY",
		GeminiAPIKeyEnv: "INTELBRIEF_TEST_EMPTY",
		AnthropicModel:  "claude-3-5-haiku-latest",
		AnthropicKeyEnv: "INTELBRIEF_TEST_ANTHROPIC",
	})
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Errorf("expected Anthropic fallback, got %T", p)
	}
}
