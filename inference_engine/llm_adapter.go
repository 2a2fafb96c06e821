package inference_engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	gollm "github.com/guiperry/gollm_cerebras"
	"github.com/guiperry/gollm_cerebras/config"
	"github.com/guiperry/gollm_cerebras/llm"
)

// TextGenerator defines the minimal interface needed for generating text.
// Implementations must honor ctx cancellation.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// LLMAdapter wraps an llm.LLM instance to implement the TextGenerator interface
type LLMAdapter struct {
	LLM          llm.LLM
	ProviderName string
}

// NewLLMAdapter creates a new LLMAdapter instance
func NewLLMAdapter(llmInstance llm.LLM, providerName string) *LLMAdapter {
	return &LLMAdapter{
		LLM:          llmInstance,
		ProviderName: providerName,
	}
}

// GenerateText implements the TextGenerator interface
func (a *LLMAdapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	return a.LLM.Generate(ctx, llm.NewPrompt(prompt))
}

// GeneratorConfig selects and configures the narrative model.
type GeneratorConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// ResolveAPIKey returns APIKey or, when empty, the <PROVIDER>_API_KEY variable.
func (c GeneratorConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(strings.ToUpper(c.Provider) + "_API_KEY")
}

// NewGenerator builds the generator for cfg.Provider. Provider "none" (or
// empty) returns a nil generator, which disables the narrative phase.
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "none":
		return nil, nil
	case "gemini":
		gen, err := NewGeminiGenerator(ctx, cfg.ResolveAPIKey(), cfg.Model, float32(cfg.Temperature), int32(cfg.MaxTokens))
		if err != nil {
			return nil, err
		}
		return gen, nil
	}

	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", provider)
	}

	opts := []config.ConfigOption{
		config.SetProvider(provider),
		config.SetAPIKey(apiKey),
		config.SetModel(cfg.Model),
		config.SetMaxTokens(cfg.MaxTokens),
	}
	llmInstance, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s model %s: %w", provider, cfg.Model, err)
	}
	initialized, ok := llmInstance.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("initialized instance for model %s is not of type llm.LLM", cfg.Model)
	}
	initialized.SetOption("temperature", cfg.Temperature)

	return NewLLMAdapter(initialized, provider), nil
}
