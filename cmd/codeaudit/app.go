package main

import (
	"context"
	"errors"
	"io"
	"os"

	"codeaudit/inference_engine"
	"codeaudit/internal/catalog"
	"codeaudit/internal/config"
	"codeaudit/internal/embedding"
	"codeaudit/internal/events"
	"codeaudit/internal/guardian"
	"codeaudit/internal/knowledge"
	"codeaudit/internal/logging"
	"codeaudit/internal/metrics"
	"codeaudit/internal/risk"
	"codeaudit/internal/scanner"
	"codeaudit/internal/server"
	"codeaudit/internal/source"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// app is the fully wired engine plus everything that must be closed on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	engine   *guardian.Engine
	features server.Features
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

type buildOptions struct {
	disableNarrative bool
}

// loadConfig reads the env file (if present) and then the configuration.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return config.Load(configPath)
}

func buildApp(ctx context.Context, opts buildOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	profile, err := cfg.ScoringProfile()
	if err != nil {
		return nil, err
	}
	scorer, err := risk.NewScorer(profile)
	if err != nil {
		return nil, err
	}

	cat := catalog.Default()
	detector, err := scanner.NewDetector(cat)
	if err != nil {
		return nil, err
	}

	embedder := embedding.NewService(embedding.Config{
		Endpoint: cfg.Embedding.Endpoint,
		UseLocal: cfg.Embedding.UseLocal,
		Timeout:  cfg.Embedding.Timeout(),
	}, logger.Named("embedding"))

	var retriever guardian.Retriever
	store, err := knowledge.NewStore(ctx, knowledge.DefaultEntries(), embedder.ChromemFunc(), logger.Named("knowledge"))
	if err != nil {
		logger.Warn("knowledge base unavailable, retrieval disabled", zap.Error(err))
	} else {
		retriever = knowledge.NewRetriever(store, cfg.Limits.RetrievalK, cfg.Limits.SnippetChars, logger.Named("retrieval"))
	}

	engineOpts := []guardian.Option{
		guardian.WithRetriever(retriever),
		guardian.WithGate(risk.NewGate(cfg.CorroborationMode(), logger.Named("gate"))),
		guardian.WithScorer(scorer),
		guardian.WithSourceResolver(source.NewGitHubResolver(source.Config{
			APIURL:       cfg.Source.GitHubAPIURL,
			Token:        cfg.Source.GitHubToken,
			MaxFiles:     cfg.Source.MaxFiles,
			MaxFileChars: cfg.Source.MaxFileChars,
		}, logger.Named("source"))),
		guardian.WithMetrics(metrics.Global()),
		guardian.WithLimits(guardian.Limits{
			MaxInputChars:      cfg.Limits.MaxInputChars,
			MaxFindings:        cfg.Limits.MaxFindings,
			MaxRecommendations: cfg.Limits.MaxRecommendations,
			BatchConcurrency:   cfg.Limits.BatchConcurrency,
			BatchMaxUnits:      cfg.Limits.BatchMaxUnits,
			NarrativeTimeout:   cfg.Narrative.Timeout(),
		}),
		guardian.WithLogger(logger.Named("engine")),
	}

	if !opts.disableNarrative {
		if narrator := a.buildNarrator(ctx); narrator != nil {
			engineOpts = append(engineOpts, guardian.WithNarrator(narrator))
		}
	}

	if cfg.Events.EnableKafka {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
			Async:   true,
		}, logger.Named("events"))
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			engineOpts = append(engineOpts, guardian.WithPublisher(pub))
			a.closers = append(a.closers, pub.Close)
			a.features.Events = true
		}
	}

	engine, err := guardian.New(cat, detector, engineOpts...)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.features.Knowledge = retriever != nil
	a.features.Repository = true
	a.features.CorroborationMode = string(cfg.CorroborationMode())
	a.features.ScoringProfile = profile.Name
	return a, nil
}

// buildNarrator returns nil when no provider is usable; the engine then
// runs static-only and reports the narrative phase disabled.
func (a *app) buildNarrator(ctx context.Context) *inference_engine.NarrativeAnalyzer {
	cfg, logger := a.cfg, a.logger
	gen, err := inference_engine.NewGenerator(ctx, inference_engine.GeneratorConfig{
		Provider:    cfg.Narrative.Provider,
		Model:       cfg.Narrative.Model,
		APIKey:      cfg.Narrative.APIKey,
		Temperature: cfg.Narrative.Temperature,
		MaxTokens:   cfg.Narrative.MaxTokens,
	})
	if err != nil {
		logger.Warn("narrative analysis disabled", zap.String("provider", cfg.Narrative.Provider), zap.Error(err))
		return nil
	}
	if gen == nil {
		logger.Info("narrative analysis disabled by configuration")
		return nil
	}
	if c, ok := gen.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	return inference_engine.NewNarrativeAnalyzer(gen, catalog.Default(),
		inference_engine.WithTokenCounter(inference_engine.NewTiktokenCounter(cfg.Narrative.TokenizerModel)),
		inference_engine.WithCharBudget(cfg.Limits.NarrativeCharBudget),
		inference_engine.WithContextBudget(cfg.Limits.ContextTokenBudget),
		inference_engine.WithNarrativeLogger(logger.Named("narrative")),
	)
}
