package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// LocalDimensions is the width of locally computed embeddings.
const LocalDimensions = 256

// Config selects between the external embedding service and local vectors.
type Config struct {
	Endpoint string
	UseLocal bool
	Timeout  time.Duration
}

// Service produces embedding vectors. When an external endpoint is configured
// it is tried first and local embeddings are used as fallback.
type Service struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewService creates a new embedding service
func NewService(cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Embed returns the embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.config.UseLocal || s.config.Endpoint == "" {
		return Local(text), nil
	}

	embeddings, err := s.createExternalEmbeddings(ctx, []string{text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding cancelled: %w", ctx.Err())
		}
		s.logger.Warn("external embedding service failed, falling back to local embeddings", zap.Error(err))
		return Local(text), nil
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}
	return embeddings[0], nil
}

// ChromemFunc adapts the service to chromem's embedding function signature.
func (s *Service) ChromemFunc() chromem.EmbeddingFunc {
	return s.Embed
}

func (s *Service) createExternalEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(map[string]interface{}{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var response struct {
		Success    bool        `json:"success"`
		Embeddings [][]float32 `json:"embeddings"`
		Error      string      `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("embedding service error: %s", response.Error)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

// Local computes a deterministic, unit-length bag-of-words vector using
// feature hashing over lowercased word tokens and adjacent token pairs.
func Local(text string) []float32 {
	vec := make([]float32, LocalDimensions)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		vec[0] = 1
		return vec
	}

	for i, tok := range tokens {
		idx, sign := bucket(tok)
		vec[idx] += sign
		if i > 0 {
			idx, sign = bucket(tokens[i-1] + " " + tok)
			vec[idx] += sign * 0.5
		}
	}
	return Normalize(vec)
}

// Tokenize splits text into lowercase alphanumeric words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func bucket(token string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()
	sign := float32(1)
	if sum&(1<<63) != 0 {
		sign = -1
	}
	return int(sum % LocalDimensions), sign
}

// Normalize scales v to unit length in place. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Similarity calculates cosine similarity between two embeddings
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
