package inference_engine

import (
	"context"
	"errors"
	"unicode/utf8"

	"codeaudit/internal/catalog"
	"codeaudit/types"

	"go.uber.org/zap"
)

const (
	DefaultCharBudget    = 5000
	DefaultContextBudget = 800
)

// CategoryResolver validates model-supplied categories and classifier ids.
type CategoryResolver interface {
	Get(id string) (catalog.Category, bool)
	Canonicalize(name string) (string, bool)
	ByWeakness(weaknessID string) (string, bool)
	KnownWeakness(weaknessID string) bool
	Infos() []types.CategoryInfo
}

// NarrativeResult is the outcome of one narrative call. Payload is nil when
// the phase degraded; Degradation then says why.
type NarrativeResult struct {
	Payload         *NarrativePayload
	Findings        []types.Finding
	Dropped         int
	Repaired        bool
	Degradation     types.Degradation
	InputTruncation *types.Truncation
}

// Usable reports whether the model produced a parseable payload.
func (r NarrativeResult) Usable() bool {
	return r.Payload != nil
}

// NarrativeAnalyzer asks a language model to validate and extend static findings.
type NarrativeAnalyzer struct {
	generator     TextGenerator
	resolver      CategoryResolver
	counter       TokenCounter
	charBudget    int
	contextBudget int
	logger        *zap.Logger
}

// NarrativeOption configures a NarrativeAnalyzer.
type NarrativeOption func(*NarrativeAnalyzer)

func WithTokenCounter(counter TokenCounter) NarrativeOption {
	return func(a *NarrativeAnalyzer) {
		if counter != nil {
			a.counter = counter
		}
	}
}

// WithCharBudget sets how many characters of code are sent to the model.
func WithCharBudget(n int) NarrativeOption {
	return func(a *NarrativeAnalyzer) {
		if n > 0 {
			a.charBudget = n
		}
	}
}

// WithContextBudget sets the token budget for retrieved knowledge in the prompt.
func WithContextBudget(n int) NarrativeOption {
	return func(a *NarrativeAnalyzer) {
		if n > 0 {
			a.contextBudget = n
		}
	}
}

func WithNarrativeLogger(logger *zap.Logger) NarrativeOption {
	return func(a *NarrativeAnalyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewNarrativeAnalyzer creates an analyzer. A nil generator yields an
// analyzer whose phase is always disabled.
func NewNarrativeAnalyzer(generator TextGenerator, resolver CategoryResolver, opts ...NarrativeOption) *NarrativeAnalyzer {
	a := &NarrativeAnalyzer{
		generator:     generator,
		resolver:      resolver,
		counter:       ApproxCounter{},
		charBudget:    DefaultCharBudget,
		contextBudget: DefaultContextBudget,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether a generator is configured.
func (a *NarrativeAnalyzer) Enabled() bool {
	return a != nil && a.generator != nil
}

// PrepareCode cuts the unit to the character budget and appends the
// remainder marker. The remainder counts from the submitted length, so
// text already removed by the input cap is included.
func (a *NarrativeAnalyzer) PrepareCode(unit types.CodeUnit) (string, *types.Truncation) {
	kept, _ := types.TruncateText(unit.Text, a.charBudget)
	keptLen := utf8.RuneCountInString(kept)
	original := max(unit.OriginalLength, utf8.RuneCountInString(unit.Text))
	if original <= keptLen {
		return unit.Text, nil
	}
	trunc := &types.Truncation{AppliedLength: keptLen, RemainingChars: original - keptLen}
	return kept + "\n" + types.RemainderMarker(trunc.RemainingChars), trunc
}

// Analyze never returns an error: every failure maps to a degradation.
func (a *NarrativeAnalyzer) Analyze(ctx context.Context, unit types.CodeUnit, static []types.Finding, retrieval types.RetrievalResult) NarrativeResult {
	if !a.Enabled() {
		return NarrativeResult{Degradation: types.DegradationNarrativeDisabled}
	}

	code, trunc := a.PrepareCode(unit)
	result := NarrativeResult{InputTruncation: trunc}

	var categories []types.CategoryInfo
	if a.resolver != nil {
		categories = a.resolver.Infos()
	}
	prompt := BuildAnalysisPrompt(PromptInput{
		Language:       unit.Language,
		Code:           code,
		StaticFindings: static,
		Knowledge:      retrieval.Items,
		Categories:     categories,
	}, a.counter, a.contextBudget)

	raw, err := a.generator.GenerateText(ctx, prompt)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		result.Degradation = a.classify(ctx, err)
		a.logger.Warn("narrative call failed", zap.String("degradation", string(result.Degradation)), zap.Error(err))
		return result
	}

	payload, err := a.parse(raw)
	if err != nil {
		a.logger.Info("narrative payload unparseable, requesting repair", zap.Error(err))
		if ctx.Err() != nil {
			result.Degradation = types.DegradationNarrativeTimeout
			return result
		}
		fixed, rerr := a.generator.GenerateText(ctx, BuildRepairPrompt(raw))
		if rerr == nil && ctx.Err() != nil {
			rerr = ctx.Err()
		}
		if rerr != nil {
			result.Degradation = a.classify(ctx, rerr)
			a.logger.Warn("narrative repair call failed", zap.Error(rerr))
			return result
		}
		if payload, err = a.parse(fixed); err != nil {
			result.Degradation = types.DegradationNarrativeUnparseable
			a.logger.Warn("narrative payload unparseable after repair", zap.Error(err))
			return result
		}
		result.Repaired = true
	}

	result.Payload = payload
	result.Findings, result.Dropped = a.validate(payload.Vulnerabilities, unit.LineCount())
	if result.Dropped > 0 {
		a.logger.Info("dropped invalid narrative findings", zap.Int("dropped", result.Dropped))
	}
	return result
}

func (a *NarrativeAnalyzer) parse(raw string) (*NarrativePayload, error) {
	if payload, err := ParseStrict(raw); err == nil {
		return payload, nil
	}
	return ParseLenient(raw)
}

func (a *NarrativeAnalyzer) classify(ctx context.Context, err error) types.Degradation {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return types.DegradationNarrativeTimeout
	}
	return types.DegradationNarrativeUnavailable
}

// validate converts model findings into catalog findings. Findings with an
// unknown category or classifier, or an invalid severity, are dropped.
func (a *NarrativeAnalyzer) validate(in []NarrativeFinding, lineCount int) ([]types.Finding, int) {
	out := make([]types.Finding, 0, len(in))
	dropped := 0
	for _, nf := range in {
		f, ok := a.toFinding(nf, lineCount)
		if !ok {
			dropped++
			continue
		}
		out = append(out, f)
	}
	return out, dropped
}

func (a *NarrativeAnalyzer) toFinding(nf NarrativeFinding, lineCount int) (types.Finding, bool) {
	if a.resolver == nil {
		return types.Finding{}, false
	}
	severity, ok := types.ParseSeverity(nf.Severity)
	if !ok {
		return types.Finding{}, false
	}

	id, ok := a.resolver.Canonicalize(nf.Category)
	if !ok && nf.Category == "" {
		id, ok = a.resolver.ByWeakness(nf.WeaknessID)
	}
	if !ok {
		return types.Finding{}, false
	}
	if nf.WeaknessID != "" && !a.resolver.KnownWeakness(nf.WeaknessID) {
		return types.Finding{}, false
	}
	cat, ok := a.resolver.Get(id)
	if !ok {
		return types.Finding{}, false
	}

	lines := make([]int, 0, len(nf.LineNumbers))
	for _, l := range nf.LineNumbers {
		if l >= 1 && l <= lineCount {
			lines = append(lines, l)
		}
	}

	return types.Finding{
		Category:    cat.ID,
		Title:       firstNonEmpty(nf.Title, cat.DisplayName),
		Severity:    severity,
		Description: firstNonEmpty(nf.Description, cat.Description),
		LineNumbers: types.NormalizeLines(lines),
		Remediation: firstNonEmpty(nf.Remediation, cat.Remediation),
		WeaknessID:  cat.WeaknessID,
		Origin:      types.OriginNarrative,
	}, true
}
