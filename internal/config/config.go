package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"codeaudit/internal/risk"
	"codeaudit/types"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Limits        LimitsConfig        `yaml:"limits"`
	Narrative     NarrativeConfig     `yaml:"narrative"`
	Corroboration CorroborationConfig `yaml:"corroboration"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Events        EventsConfig        `yaml:"events"`
	Source        SourceConfig        `yaml:"source"`
}

type ServerConfig struct {
	Port               int   `yaml:"port"`
	MaxBodyBytes       int64 `yaml:"max_body_bytes"`
	RateLimitPerMinute int   `yaml:"rate_limit_per_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LimitsConfig bounds every stage of the pipeline.
type LimitsConfig struct {
	MaxInputChars       int `yaml:"max_input_chars"`
	NarrativeCharBudget int `yaml:"narrative_char_budget"`
	ContextTokenBudget  int `yaml:"context_token_budget"`
	MaxFindings         int `yaml:"max_findings"`
	MaxRecommendations  int `yaml:"max_recommendations"`
	RetrievalK          int `yaml:"retrieval_k"`
	SnippetChars        int `yaml:"snippet_chars"`
	BatchConcurrency    int `yaml:"batch_concurrency"`
	BatchMaxUnits       int `yaml:"batch_max_units"`
}

// NarrativeConfig defines the language model used for the narrative phase.
type NarrativeConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	TokenizerModel string  `yaml:"tokenizer_model"`
}

func (n NarrativeConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

type CorroborationConfig struct {
	Mode string `yaml:"mode"`
}

// ScoringConfig selects a built-in profile and optionally overrides its constants.
type ScoringConfig struct {
	Profile    string             `yaml:"profile"`
	Weights    map[string]float64 `yaml:"weights"`
	Multiplier float64            `yaml:"multiplier"`
	Thresholds *risk.Thresholds   `yaml:"thresholds"`
}

type EmbeddingConfig struct {
	Endpoint       string `yaml:"endpoint"`
	UseLocal       bool   `yaml:"use_local"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

type EventsConfig struct {
	EnableKafka  bool     `yaml:"enable_kafka"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

type SourceConfig struct {
	GitHubToken  string `yaml:"github_token"`
	GitHubAPIURL string `yaml:"github_api_url"`
	MaxFiles     int    `yaml:"max_files"`
	MaxFileChars int    `yaml:"max_file_chars"`
}

var knownProviders = map[string]bool{
	"none":      true,
	"gemini":    true,
	"cerebras":  true,
	"openai":    true,
	"anthropic": true,
	"deepseek":  true,
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			MaxBodyBytes:       10 * 1024 * 1024,
			RateLimitPerMinute: 120,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Limits: LimitsConfig{
			MaxInputChars:       200000,
			NarrativeCharBudget: 5000,
			ContextTokenBudget:  800,
			MaxFindings:         20,
			MaxRecommendations:  10,
			RetrievalK:          3,
			SnippetChars:        300,
			BatchConcurrency:    10,
			BatchMaxUnits:       10,
		},
		Narrative: NarrativeConfig{
			Provider:       "gemini",
			Model:          "gemini-1.5-flash-latest",
			Temperature:    0,
			MaxTokens:      1500,
			TimeoutSeconds: 30,
			TokenizerModel: "gpt-4",
		},
		Corroboration: CorroborationConfig{Mode: string(risk.ModeEither)},
		Scoring:       ScoringConfig{Profile: "calibrated"},
		Embedding:     EmbeddingConfig{UseLocal: true, TimeoutSeconds: 10},
		Events: EventsConfig{
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "codeaudit.analyses",
		},
		Source: SourceConfig{
			GitHubAPIURL: "https://api.github.com",
			MaxFiles:     10,
			MaxFileChars: 5000,
		},
	}
}

// Load reads defaults, then the optional YAML file at path, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.Server.RateLimitPerMinute)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Limits.MaxInputChars = getEnvInt("MAX_INPUT_CHARS", c.Limits.MaxInputChars)
	c.Limits.NarrativeCharBudget = getEnvInt("NARRATIVE_CHAR_BUDGET", c.Limits.NarrativeCharBudget)
	c.Limits.ContextTokenBudget = getEnvInt("CONTEXT_TOKEN_BUDGET", c.Limits.ContextTokenBudget)
	c.Limits.MaxFindings = getEnvInt("MAX_FINDINGS", c.Limits.MaxFindings)
	c.Limits.MaxRecommendations = getEnvInt("MAX_RECOMMENDATIONS", c.Limits.MaxRecommendations)
	c.Limits.RetrievalK = getEnvInt("RETRIEVAL_K", c.Limits.RetrievalK)
	c.Limits.SnippetChars = getEnvInt("SNIPPET_CHARS", c.Limits.SnippetChars)
	c.Limits.BatchConcurrency = getEnvInt("BATCH_CONCURRENCY", c.Limits.BatchConcurrency)
	c.Limits.BatchMaxUnits = getEnvInt("BATCH_MAX_UNITS", c.Limits.BatchMaxUnits)

	c.Narrative.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.Narrative.Provider))
	c.Narrative.Model = getEnv("LLM_MODEL", c.Narrative.Model)
	c.Narrative.APIKey = getEnv("LLM_API_KEY", c.Narrative.APIKey)
	c.Narrative.Temperature = getEnvFloat("LLM_TEMPERATURE", c.Narrative.Temperature)
	c.Narrative.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.Narrative.MaxTokens)
	c.Narrative.TimeoutSeconds = getEnvInt("NARRATIVE_TIMEOUT", c.Narrative.TimeoutSeconds)

	c.Corroboration.Mode = getEnv("CORROBORATION_MODE", c.Corroboration.Mode)
	c.Scoring.Profile = getEnv("SCORING_PROFILE", c.Scoring.Profile)

	c.Embedding.Endpoint = getEnv("EMBEDDING_ENDPOINT", c.Embedding.Endpoint)
	c.Embedding.UseLocal = getEnvBool("USE_LOCAL_EMBEDDINGS", c.Embedding.UseLocal)

	c.Events.EnableKafka = getEnvBool("KAFKA_ENABLE", c.Events.EnableKafka)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Events.KafkaBrokers = splitList(brokers)
	}
	c.Events.KafkaTopic = getEnv("KAFKA_TOPIC", c.Events.KafkaTopic)

	c.Source.GitHubToken = getEnv("GITHUB_TOKEN", c.Source.GitHubToken)
	c.Source.GitHubAPIURL = getEnv("GITHUB_API_URL", c.Source.GitHubAPIURL)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	limits := map[string]int{
		"max_input_chars":       c.Limits.MaxInputChars,
		"narrative_char_budget": c.Limits.NarrativeCharBudget,
		"context_token_budget":  c.Limits.ContextTokenBudget,
		"max_findings":          c.Limits.MaxFindings,
		"max_recommendations":   c.Limits.MaxRecommendations,
		"retrieval_k":           c.Limits.RetrievalK,
		"snippet_chars":         c.Limits.SnippetChars,
		"batch_concurrency":     c.Limits.BatchConcurrency,
		"batch_max_units":       c.Limits.BatchMaxUnits,
		"narrative.timeout":     c.Narrative.TimeoutSeconds,
	}
	for name, v := range limits {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !knownProviders[strings.ToLower(c.Narrative.Provider)] {
		return fmt.Errorf("invalid llm provider: %s", c.Narrative.Provider)
	}
	if _, err := risk.ParseMode(c.Corroboration.Mode); err != nil {
		return err
	}
	if _, err := c.ScoringProfile(); err != nil {
		return err
	}
	if c.Events.EnableKafka && (len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "") {
		return fmt.Errorf("kafka enabled but brokers or topic are missing")
	}
	return nil
}

// ScoringProfile resolves the named profile and applies overrides.
func (c *Config) ScoringProfile() (risk.Profile, error) {
	p, err := risk.ProfileByName(c.Scoring.Profile)
	if err != nil {
		return risk.Profile{}, err
	}
	for name, w := range c.Scoring.Weights {
		sev, ok := types.ParseSeverity(name)
		if !ok {
			return risk.Profile{}, fmt.Errorf("scoring weight for unknown severity %q", name)
		}
		p.Weights[sev] = w
	}
	for _, sev := range types.AllSeverities {
		key := "SCORING_WEIGHT_" + strings.ToUpper(string(sev))
		p.Weights[sev] = getEnvFloat(key, p.Weights[sev])
	}
	if c.Scoring.Multiplier != 0 {
		p.Multiplier = c.Scoring.Multiplier
	}
	if c.Scoring.Thresholds != nil {
		p.Thresholds = *c.Scoring.Thresholds
	}
	if err := p.Validate(); err != nil {
		return risk.Profile{}, err
	}
	return p, nil
}

// CorroborationMode returns the parsed mode; Validate guarantees it is known.
func (c *Config) CorroborationMode() risk.CorroborationMode {
	mode, err := risk.ParseMode(c.Corroboration.Mode)
	if err != nil {
		return risk.ModeEither
	}
	return mode
}

// getEnv retrieves environment variable with fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves boolean environment variable with fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt retrieves integer environment variable with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
