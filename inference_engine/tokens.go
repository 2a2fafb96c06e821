package inference_engine

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a text costs in a prompt.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter estimates one token per four bytes.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// modelToEncoding is a map of model prefixes to their corresponding tiktoken encoding.
var modelToEncoding = map[string]string{
	"gpt-4o":  "o200k_base",
	"gpt-4":   "cl100k_base",
	"gpt-3.5": "cl100k_base",
	"claude":  "cl100k_base",
	"llama":   "cl100k_base",
	"gemini":  "cl100k_base",
}

// TiktokenCounter counts tokens with the BPE encoding matching a model.
// Encodings are loaded lazily; if loading fails it falls back to ApproxCounter.
type TiktokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := getEncodingForModel(c.model)
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return ApproxCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// getEncodingForModel returns the appropriate tiktoken encoding for a given model
func getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	lowerModel := strings.ToLower(model)

	if encodingName, ok := tiktoken.MODEL_TO_ENCODING[lowerModel]; ok {
		return tiktoken.GetEncoding(encodingName)
	}
	for prefix, encodingName := range modelToEncoding {
		if strings.HasPrefix(lowerModel, prefix) {
			return tiktoken.GetEncoding(encodingName)
		}
	}
	return tiktoken.GetEncoding("cl100k_base")
}
