package guardian

import (
	"context"
	"strings"
	"time"

	"codeaudit/inference_engine"
	"codeaudit/internal/catalog"
	apperrors "codeaudit/internal/errors"
	"codeaudit/internal/events"
	"codeaudit/internal/logging"
	"codeaudit/internal/metrics"
	"codeaudit/internal/risk"
	"codeaudit/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Detector is the deterministic pattern phase.
type Detector interface {
	Scan(unit types.CodeUnit) []types.Finding
	PatternCount(category string) int
}

// Retriever looks up guidance for a unit and the categories the detector
// found in it. It must not fail; an unusable store is reported through
// RetrievalResult.Unavailable.
type Retriever interface {
	Retrieve(ctx context.Context, language string, categories []string, code string) types.RetrievalResult
}

// Narrator is the model-backed phase. It must not fail either.
type Narrator interface {
	Analyze(ctx context.Context, unit types.CodeUnit, static []types.Finding, retrieval types.RetrievalResult) inference_engine.NarrativeResult
}

// SourceResolver turns a repository URL into source text.
type SourceResolver interface {
	Resolve(ctx context.Context, repoURL string) (string, error)
}

// Limits bounds a single analysis and a batch.
type Limits struct {
	MaxInputChars      int
	MaxFindings        int
	MaxRecommendations int
	BatchConcurrency   int
	BatchMaxUnits      int
	NarrativeTimeout   time.Duration
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxInputChars:      200000,
		MaxFindings:        20,
		MaxRecommendations: 10,
		BatchConcurrency:   10,
		BatchMaxUnits:      10,
		NarrativeTimeout:   30 * time.Second,
	}
}

// Engine runs the hybrid pipeline. Everything it holds is read-only after
// construction, so one Engine serves concurrent requests.
type Engine struct {
	catalog   *catalog.Catalog
	detector  Detector
	retriever Retriever
	narrator  Narrator
	gate      *risk.Gate
	scorer    *risk.Scorer
	resolver  SourceResolver
	publisher events.Publisher
	metrics   *metrics.Recorder
	limits    Limits
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithRetriever(r Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

func WithNarrator(n Narrator) Option {
	return func(e *Engine) { e.narrator = n }
}

func WithGate(g *risk.Gate) Option {
	return func(e *Engine) {
		if g != nil {
			e.gate = g
		}
	}
}

func WithScorer(s *risk.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

func WithSourceResolver(r SourceResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLimits(l Limits) Option {
	return func(e *Engine) { e.limits = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an engine around the catalog and detector. Without a narrator
// the narrative phase reports itself disabled; without a retriever the
// knowledge context is reported unavailable.
func New(cat *catalog.Catalog, detector Detector, opts ...Option) (*Engine, error) {
	if cat == nil || detector == nil {
		return nil, apperrors.NewInternalError("engine needs a catalog and a detector", nil)
	}
	scorer, err := risk.NewScorer(risk.CalibratedProfile())
	if err != nil {
		return nil, apperrors.NewInternalError("invalid default scoring profile", err)
	}

	e := &Engine{
		catalog:   cat,
		detector:  detector,
		gate:      risk.NewGate(risk.ModeEither, nil),
		scorer:    scorer,
		publisher: events.NoopPublisher{},
		limits:    DefaultLimits(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	d := DefaultLimits()
	if e.limits.MaxFindings <= 0 {
		e.limits.MaxFindings = d.MaxFindings
	}
	if e.limits.MaxRecommendations <= 0 {
		e.limits.MaxRecommendations = d.MaxRecommendations
	}
	if e.limits.BatchConcurrency <= 0 {
		e.limits.BatchConcurrency = d.BatchConcurrency
	}
	if e.limits.BatchMaxUnits <= 0 {
		e.limits.BatchMaxUnits = d.BatchMaxUnits
	}
	if e.limits.NarrativeTimeout <= 0 {
		e.limits.NarrativeTimeout = d.NarrativeTimeout
	}
	return e, nil
}

// Categories is the discovery listing with the detector's pattern counts.
func (e *Engine) Categories() []types.CategoryInfo {
	infos := e.catalog.Infos()
	for i := range infos {
		infos[i].PatternCount = e.detector.PatternCount(infos[i].ID)
	}
	return infos
}

// NarrativeEnabled reports whether a model is wired in.
func (e *Engine) NarrativeEnabled() bool {
	if e.narrator == nil {
		return false
	}
	if n, ok := e.narrator.(interface{ Enabled() bool }); ok {
		return n.Enabled()
	}
	return true
}

// Analyze runs the pipeline on code. Blank code is the only error.
func (e *Engine) Analyze(ctx context.Context, code, language string) (*types.AnalysisReport, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.NewValidationError("Code cannot be empty", nil)
	}
	report := e.run(ctx, code, language)
	e.publish(ctx, events.NewAnalysisEvent(report, ""))
	return report, nil
}

// AnalyzeRequest resolves the request's source, then analyzes it. Requests
// with neither code nor a resolvable repository are rejected.
func (e *Engine) AnalyzeRequest(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisReport, error) {
	code, err := e.resolveSource(ctx, req)
	if err != nil {
		return nil, err
	}
	report := e.run(ctx, code, req.Language)
	e.publish(ctx, events.NewAnalysisEvent(report, req.FileName))
	return report, nil
}

func (e *Engine) resolveSource(ctx context.Context, req types.AnalysisRequest) (string, error) {
	wantsRepo := strings.EqualFold(req.InputType, "repo") ||
		(strings.TrimSpace(req.Code) == "" && strings.TrimSpace(req.RepoURL) != "")

	if !wantsRepo {
		if strings.TrimSpace(req.Code) == "" {
			return "", apperrors.NewValidationError("Code cannot be empty", nil)
		}
		return req.Code, nil
	}

	if strings.TrimSpace(req.RepoURL) == "" {
		return "", apperrors.NewValidationError("GitHub repository URL cannot be empty", nil)
	}
	if e.resolver == nil {
		return "", apperrors.NewValidationError("Repository analysis is not configured", nil)
	}
	code, err := e.resolver.Resolve(ctx, req.RepoURL)
	if err != nil {
		if apperrors.IsValidation(err) {
			return "", err
		}
		verr := apperrors.NewValidationError("Unable to resolve repository", map[string]interface{}{"repo_url": req.RepoURL})
		verr.Cause = err
		return "", verr
	}
	return code, nil
}

// run is the single-unit pipeline. It always yields a report. Retrieval
// waits on the detector because its query names the static categories.
func (e *Engine) run(ctx context.Context, code, language string) *types.AnalysisReport {
	start := e.now()
	unit := types.NewCodeUnit(code, language, e.limits.MaxInputChars)
	log := e.logger.With(zap.String("language", unit.Language), zap.Int("chars", unit.OriginalLength))
	log.Debug("analysis started", zap.String("preview", logging.Preview(unit.Text, 200)))

	static := e.detector.Scan(unit)
	retrieval := e.retrieve(ctx, unit, static)
	narrative := e.narrate(ctx, unit, static, retrieval)

	accepted, rejected := e.gate.Filter(static, narrative.Findings, retrieval)
	merged := risk.Merge(static, accepted)

	report := e.assemble(unit, assembly{
		static:    static,
		accepted:  accepted,
		merged:    merged,
		narrative: narrative,
		retrieval: retrieval,
	})

	log.Info("analysis complete",
		zap.String("report_id", report.ReportID),
		zap.Float64("score", report.SecurityScore),
		zap.String("risk", string(report.OverallRisk)),
		zap.Int("static", len(static)),
		zap.Int("narrative_accepted", len(accepted)),
		zap.Int("narrative_rejected", len(rejected)),
		zap.Bool("ai_enhanced", report.AIEnhanced))

	e.metrics.ObserveReport(ctx, report, len(rejected), e.now().Sub(start))
	return report
}

func (e *Engine) retrieve(ctx context.Context, unit types.CodeUnit, static []types.Finding) types.RetrievalResult {
	if e.retriever == nil {
		return types.RetrievalResult{Unavailable: true}
	}
	categories := make([]string, 0, len(static))
	for _, f := range static {
		categories = append(categories, f.Category)
	}
	return e.retriever.Retrieve(ctx, unit.Language, categories, unit.Text)
}

func (e *Engine) narrate(ctx context.Context, unit types.CodeUnit, static []types.Finding, retrieval types.RetrievalResult) inference_engine.NarrativeResult {
	if e.narrator == nil {
		return inference_engine.NarrativeResult{Degradation: types.DegradationNarrativeDisabled}
	}
	nctx, cancel := context.WithTimeout(ctx, e.limits.NarrativeTimeout)
	defer cancel()

	// A provider that ignores ctx is abandoned at the deadline; its late
	// result lands in the buffered channel and is dropped.
	done := make(chan inference_engine.NarrativeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("narrative phase panicked", zap.Any("panic", r))
				done <- inference_engine.NarrativeResult{Degradation: types.DegradationNarrativeUnavailable}
			}
		}()
		done <- e.narrator.Analyze(nctx, unit, static, retrieval)
	}()

	select {
	case result := <-done:
		return result
	case <-nctx.Done():
		e.logger.Warn("narrative phase abandoned at deadline", zap.Duration("timeout", e.limits.NarrativeTimeout))
		return inference_engine.NarrativeResult{Degradation: types.DegradationNarrativeTimeout}
	}
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("event not published", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func newReportID() string {
	return uuid.NewString()
}
