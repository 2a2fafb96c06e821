package inference_engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiGenerator calls Gemini through the official SDK, requesting JSON output.
type GeminiGenerator struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGeminiGenerator creates a client for model with the given sampling settings.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, temperature float32, maxTokens int32) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider gemini")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	gm := client.GenerativeModel(model)
	gm.SetTemperature(temperature)
	if maxTokens > 0 {
		gm.SetMaxOutputTokens(maxTokens)
	}
	gm.ResponseMIMEType = "application/json"

	return &GeminiGenerator{client: client, model: gm, modelName: model}, nil
}

// GenerateText implements the TextGenerator interface
func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", g.modelName, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini %s returned no candidates", g.modelName)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini %s returned an empty response", g.modelName)
	}
	return b.String(), nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
