package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeaudit/internal/risk"
	"codeaudit/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5000, cfg.Limits.NarrativeCharBudget)
	assert.Equal(t, 10, cfg.Limits.BatchConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Narrative.Timeout())
	assert.Equal(t, risk.ModeEither, cfg.CorroborationMode())

	p, err := cfg.ScoringProfile()
	require.NoError(t, err)
	assert.Equal(t, "calibrated", p.Name)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeaudit.yaml")
	yamlDoc := `
limits:
  max_findings: 5
  retrieval_k: 4
narrative:
  provider: none
corroboration:
  mode: line
scoring:
  profile: legacy
  weights:
    low: 1
events:
  kafka_topic: audits
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("MAX_FINDINGS", "7")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Limits.MaxFindings, "environment wins over file")
	assert.Equal(t, 4, cfg.Limits.RetrievalK)
	assert.Equal(t, 10, cfg.Limits.MaxRecommendations, "untouched defaults survive")
	assert.Equal(t, "none", cfg.Narrative.Provider)
	assert.Equal(t, risk.ModeLine, cfg.CorroborationMode())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "audits", cfg.Events.KafkaTopic)

	p, err := cfg.ScoringProfile()
	require.NoError(t, err)
	assert.Equal(t, "legacy", p.Name)
	assert.Equal(t, 1.0, p.Weights[types.SeverityLow])
	assert.Equal(t, 25.0, p.Weights[types.SeverityCritical])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvWeightOverride(t *testing.T) {
	t.Setenv("SCORING_WEIGHT_CRITICAL", "90")

	cfg, err := Load("")
	require.NoError(t, err)

	p, err := cfg.ScoringProfile()
	require.NoError(t, err)
	assert.Equal(t, 90.0, p.Weights[types.SeverityCritical])
}

func TestValidate_Rejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero findings cap", func(c *Config) { c.Limits.MaxFindings = 0 }},
		{"negative batch concurrency", func(c *Config) { c.Limits.BatchConcurrency = -1 }},
		{"unknown provider", func(c *Config) { c.Narrative.Provider = "llamafile" }},
		{"unknown mode", func(c *Config) { c.Corroboration.Mode = "both" }},
		{"unknown profile", func(c *Config) { c.Scoring.Profile = "harsh" }},
		{"bad severity weight", func(c *Config) { c.Scoring.Weights = map[string]float64{"urgent": 5} }},
		{"unordered thresholds", func(c *Config) {
			c.Scoring.Thresholds = &risk.Thresholds{Low: 40, Medium: 60, High: 80}
		}},
		{"kafka without topic", func(c *Config) {
			c.Events.EnableKafka = true
			c.Events.KafkaTopic = ""
		}},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
