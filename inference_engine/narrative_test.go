package inference_engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"codeaudit/internal/catalog"
	"codeaudit/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator replays canned responses in order and records prompts.
type stubGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	block     bool
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no more responses")
}

type funcGenerator func(ctx context.Context, prompt string) (string, error)

func (f funcGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

const sqlCode = `def get_user(cursor, user_id):
    cursor.execute(f"SELECT * FROM users WHERE id = {user_id}")
    return cursor.fetchone()`

func unit(code string) types.CodeUnit {
	return types.NewCodeUnit(code, "python", 0)
}

func TestAnalyze_Disabled(t *testing.T) {
	a := NewNarrativeAnalyzer(nil, catalog.Default())

	result := a.Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	assert.False(t, result.Usable())
	assert.Equal(t, types.DegradationNarrativeDisabled, result.Degradation)
}

func TestAnalyze_StrictPayload(t *testing.T) {
	gen := &stubGenerator{responses: []string{validPayload}}
	a := NewNarrativeAnalyzer(gen, catalog.Default())

	result := a.Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	require.True(t, result.Usable())
	assert.Empty(t, result.Degradation)
	assert.False(t, result.Repaired)
	require.Len(t, result.Findings, 1)
	f := result.Findings[0]
	assert.Equal(t, catalog.SQLInjection, f.Category)
	assert.Equal(t, types.OriginNarrative, f.Origin)
	assert.Equal(t, []int{2}, f.LineNumbers)
	assert.Equal(t, "bind parameters", f.Remediation)
	assert.Equal(t, 1, gen.calls())
}

func TestAnalyze_LenientExtraction(t *testing.T) {
	gen := &stubGenerator{responses: []string{"```json\n" + validPayload + "\n```"}}

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	require.True(t, result.Usable())
	assert.False(t, result.Repaired)
	assert.Equal(t, 1, gen.calls(), "lenient extraction needs no repair call")
}

func TestAnalyze_RepairCall(t *testing.T) {
	gen := &stubGenerator{responses: []string{"SQL injection on line 2, severity critical", validPayload}}

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	require.True(t, result.Usable())
	assert.True(t, result.Repaired)
	require.Equal(t, 2, gen.calls())
	assert.Contains(t, gen.prompts[1], "SQL injection on line 2, severity critical")
}

func TestAnalyze_WrongShapeFallsThroughToRepair(t *testing.T) {
	responses := []string{
		`[{"category":"sql_injection","severity":"critical","line_numbers":[2]}]`,
		"The code builds {\"debug\": true} config.",
	}
	for _, first := range responses {
		gen := &stubGenerator{responses: []string{first, validPayload}}

		result := NewNarrativeAnalyzer(gen, catalog.Default()).
			Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

		require.True(t, result.Usable(), first)
		assert.True(t, result.Repaired, first)
		assert.Equal(t, 2, gen.calls(), first)
		require.Len(t, result.Findings, 1, first)
		assert.Equal(t, "One injection.", result.Payload.Summary)
	}
}

func TestAnalyze_UnparseableAfterRepair(t *testing.T) {
	gen := &stubGenerator{responses: []string{"nope", "still nope"}}

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	assert.False(t, result.Usable())
	assert.Equal(t, types.DegradationNarrativeUnparseable, result.Degradation)
	assert.Equal(t, 2, gen.calls(), "exactly one repair attempt")
}

func TestAnalyze_TransportError(t *testing.T) {
	gen := &stubGenerator{errs: []error{errors.New("502 bad gateway")}}

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	assert.False(t, result.Usable())
	assert.Equal(t, types.DegradationNarrativeUnavailable, result.Degradation)
}

func TestAnalyze_Timeout(t *testing.T) {
	gen := &stubGenerator{block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(ctx, unit(sqlCode), nil, types.RetrievalResult{})

	assert.False(t, result.Usable())
	assert.Equal(t, types.DegradationNarrativeTimeout, result.Degradation)
}

func TestAnalyze_LateReplyIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := funcGenerator(func(context.Context, string) (string, error) {
		cancel()
		return validPayload, nil
	})

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(ctx, unit(sqlCode), nil, types.RetrievalResult{})

	assert.False(t, result.Usable())
	assert.Equal(t, types.DegradationNarrativeTimeout, result.Degradation)
}

func TestAnalyze_DropsInvalidFindings(t *testing.T) {
	payload := `{"vulnerabilities":[
		{"category":"SQL Injection","severity":"critical","line_numbers":[2, 99, 0]},
		{"category":"race_condition","severity":"high","line_numbers":[1]},
		{"category":"xss","severity":"catastrophic","line_numbers":[1]},
		{"category":"sql_injection","severity":"high","weakness_id":"CWE-99999","line_numbers":[2]},
		{"severity":"medium","weakness_id":"CWE-327","line_numbers":[3]}
	],"summary":"mixed"}`
	gen := &stubGenerator{responses: []string{payload}}

	result := NewNarrativeAnalyzer(gen, catalog.Default()).
		Analyze(context.Background(), unit(sqlCode), nil, types.RetrievalResult{})

	require.True(t, result.Usable())
	assert.Equal(t, 3, result.Dropped)
	require.Len(t, result.Findings, 2)

	assert.Equal(t, catalog.SQLInjection, result.Findings[0].Category)
	assert.Equal(t, []int{2}, result.Findings[0].LineNumbers, "out-of-range lines are removed")
	assert.Equal(t, "CWE-89", result.Findings[0].WeaknessID)

	assert.Equal(t, catalog.WeakCrypto, result.Findings[1].Category, "category resolved from classifier id")
	assert.Equal(t, types.SeverityMedium, result.Findings[1].Severity)
}

func TestPrepareCode_Truncation(t *testing.T) {
	a := NewNarrativeAnalyzer(&stubGenerator{}, catalog.Default(), WithCharBudget(5000))
	code := strings.Repeat("x", 5200)

	prepared, trunc := a.PrepareCode(unit(code))

	require.NotNil(t, trunc)
	assert.Equal(t, 5000, trunc.AppliedLength)
	assert.Equal(t, 200, trunc.RemainingChars)
	assert.Equal(t, code[:5000]+"\n... (+200 more characters)", prepared)

	short, trunc := a.PrepareCode(unit("print(1)"))
	assert.Nil(t, trunc)
	assert.Equal(t, "print(1)", short)
}

func TestPrepareCode_CountsFromSubmittedLength(t *testing.T) {
	a := NewNarrativeAnalyzer(&stubGenerator{}, catalog.Default(), WithCharBudget(5000))
	capped := types.NewCodeUnit(strings.Repeat("y", 20000), "python", 8000)

	prepared, trunc := a.PrepareCode(capped)
	require.NotNil(t, trunc)
	assert.Equal(t, 5000, trunc.AppliedLength)
	assert.Equal(t, 15000, trunc.RemainingChars)
	assert.Contains(t, prepared, "... (+15000 more characters)")

	// Fits the budget but the input cap already removed text.
	small := types.NewCodeUnit(strings.Repeat("z", 300), "python", 100)
	prepared, trunc = a.PrepareCode(small)
	require.NotNil(t, trunc)
	assert.Equal(t, 100, trunc.AppliedLength)
	assert.Equal(t, strings.Repeat("z", 100)+"\n... (+200 more characters)", prepared)
}

func TestAnalyze_PromptContents(t *testing.T) {
	gen := &stubGenerator{responses: []string{validPayload}}
	a := NewNarrativeAnalyzer(gen, catalog.Default(), WithCharBudget(40))
	static := []types.Finding{{Category: catalog.SQLInjection, Severity: types.SeverityCritical, LineNumbers: []int{2}, WeaknessID: "CWE-89"}}
	retrieval := types.RetrievalResult{Items: []types.RetrievedSnippet{{ID: "kb-sql-parameterize", Category: catalog.SQLInjection, Snippet: "Use bound parameters."}}}

	result := a.Analyze(context.Background(), unit(sqlCode), static, retrieval)

	require.NotNil(t, result.InputTruncation)
	require.Equal(t, 1, gen.calls())
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "more characters)")
	assert.Contains(t, prompt, "kb-sql-parameterize")
	assert.Contains(t, prompt, `"category": "sql_injection"`)
	assert.Contains(t, prompt, "CWE-918", "allowed categories are listed")
}

func TestBuildAnalysisPrompt_ContextBudget(t *testing.T) {
	snippets := []types.RetrievedSnippet{
		{ID: "kb-a", Snippet: strings.Repeat("a", 400)},
		{ID: "kb-b", Snippet: "short"},
	}

	prompt := BuildAnalysisPrompt(PromptInput{Code: "x = 1", Knowledge: snippets}, ApproxCounter{}, 20)

	assert.NotContains(t, prompt, "[kb-a]", "snippet over budget is skipped")
	assert.Contains(t, prompt, "[kb-b] short")
	assert.Contains(t, prompt, "   1 | x = 1")
}

func TestApproxCounter(t *testing.T) {
	assert.Equal(t, 0, ApproxCounter{}.Count(""))
	assert.Equal(t, 3, ApproxCounter{}.Count("12345678"))
}
