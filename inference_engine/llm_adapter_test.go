package inference_engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guiperry/gollm_cerebras/llm"
	"github.com/guiperry/gollm_cerebras/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTokenStream implements llm.TokenStream interface for testing
type MockTokenStream struct {
	response string
	done     bool
}

func (m *MockTokenStream) Next(ctx context.Context) (*llm.StreamToken, error) {
	if m.done {
		return nil, nil
	}
	m.done = true
	return &llm.StreamToken{Text: m.response}, nil
}

func (m *MockTokenStream) Close() error {
	return nil
}

// MockLLM implements llm.LLM interface for testing
type MockLLM struct {
	generateFunc func(ctx context.Context, prompt *llm.Prompt, opts ...llm.GenerateOption) (string, error)
	options      map[string]interface{}
}

func (m *MockLLM) Generate(ctx context.Context, prompt *llm.Prompt, opts ...llm.GenerateOption) (string, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, prompt, opts...)
	}
	return "{}", nil
}

func (m *MockLLM) GenerateWithSchema(ctx context.Context, prompt *llm.Prompt, schema interface{}, opts ...llm.GenerateOption) (string, error) {
	return m.Generate(ctx, prompt, opts...)
}

func (m *MockLLM) GetLogger() utils.Logger {
	return utils.NewLogger(utils.LogLevelInfo)
}

func (m *MockLLM) NewPrompt(content string) *llm.Prompt {
	return llm.NewPrompt(content)
}

func (m *MockLLM) SetEndpoint(endpoint string) {}

func (m *MockLLM) SetLogLevel(level utils.LogLevel) {}

func (m *MockLLM) SetOption(key string, value interface{}) {
	if m.options == nil {
		m.options = make(map[string]interface{})
	}
	m.options[key] = value
}

func (m *MockLLM) Stream(ctx context.Context, prompt *llm.Prompt, opts ...llm.StreamOption) (llm.TokenStream, error) {
	return &MockTokenStream{response: "mock streaming response"}, nil
}

func (m *MockLLM) SupportsJSONSchema() bool {
	return true
}

func (m *MockLLM) SupportsStreaming() bool {
	return true
}

func TestNewLLMAdapter(t *testing.T) {
	mockLLM := &MockLLM{}
	adapter := NewLLMAdapter(mockLLM, "cerebras")

	assert.NotNil(t, adapter)
	assert.Equal(t, mockLLM, adapter.LLM)
	assert.Equal(t, "cerebras", adapter.ProviderName)
}

func TestLLMAdapter_GenerateText(t *testing.T) {
	mockLLM := &MockLLM{
		generateFunc: func(ctx context.Context, prompt *llm.Prompt, opts ...llm.GenerateOption) (string, error) {
			require.NotNil(t, prompt)
			return `{"vulnerabilities": [], "summary": "clean"}`, nil
		},
	}

	response, err := NewLLMAdapter(mockLLM, "cerebras").GenerateText(context.Background(), "analyze")

	require.NoError(t, err)
	assert.JSONEq(t, `{"vulnerabilities": [], "summary": "clean"}`, response)
}

func TestLLMAdapter_GenerateText_Error(t *testing.T) {
	expectedErr := errors.New("generation failed")
	mockLLM := &MockLLM{
		generateFunc: func(ctx context.Context, prompt *llm.Prompt, opts ...llm.GenerateOption) (string, error) {
			return "", expectedErr
		},
	}

	response, err := NewLLMAdapter(mockLLM, "cerebras").GenerateText(context.Background(), "analyze")

	assert.ErrorIs(t, err, expectedErr)
	assert.Empty(t, response)
}

func TestLLMAdapter_GenerateText_HonorsDeadline(t *testing.T) {
	mockLLM := &MockLLM{
		generateFunc: func(ctx context.Context, prompt *llm.Prompt, opts ...llm.GenerateOption) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
				return "late", nil
			}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewLLMAdapter(mockLLM, "cerebras").GenerateText(ctx, "analyze")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLLMAdapter_ConcurrentAccess(t *testing.T) {
	mockLLM := &MockLLM{
		generateFunc: func(ctx context.Context, prompt *llm.Prompt, opts ...llm.GenerateOption) (string, error) {
			time.Sleep(10 * time.Millisecond)
			return "concurrent response", nil
		},
	}
	adapter := NewLLMAdapter(mockLLM, "concurrent-provider")

	const numGoroutines = 10
	results := make(chan error, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			response, err := adapter.GenerateText(context.Background(), "prompt")
			if err == nil && response != "concurrent response" {
				err = errors.New("unexpected response")
			}
			results <- err
		}()
	}
	for i := 0; i < numGoroutines; i++ {
		assert.NoError(t, <-results)
	}
}

func TestGeneratorConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("CEREBRAS_API_KEY", "from-env")

	assert.Equal(t, "explicit", GeneratorConfig{Provider: "cerebras", APIKey: "explicit"}.ResolveAPIKey())
	assert.Equal(t, "from-env", GeneratorConfig{Provider: "cerebras"}.ResolveAPIKey())
}

func TestNewGenerator_Disabled(t *testing.T) {
	for _, provider := range []string{"", "none", " NONE "} {
		gen, err := NewGenerator(context.Background(), GeneratorConfig{Provider: provider})
		require.NoError(t, err)
		assert.Nil(t, gen)
	}
}

func TestNewGenerator_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := NewGenerator(context.Background(), GeneratorConfig{Provider: "openai", Model: "gpt-4o-mini"})
	assert.Error(t, err)

	_, err = NewGenerator(context.Background(), GeneratorConfig{Provider: "gemini"})
	assert.Error(t, err)
}
