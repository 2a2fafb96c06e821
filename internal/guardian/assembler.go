package guardian

import (
	"fmt"
	"sort"
	"strings"

	"codeaudit/inference_engine"
	"codeaudit/types"
)

type assembly struct {
	static    []types.Finding
	accepted  []types.Finding
	merged    []types.Finding
	narrative inference_engine.NarrativeResult
	retrieval types.RetrievalResult
}

// assemble builds the report. The score covers every merged finding; the
// caps only bound what is listed.
func (e *Engine) assemble(unit types.CodeUnit, a assembly) *types.AnalysisReport {
	score, tier := e.scorer.Score(a.merged)

	ordered := SortBySeverity(a.merged)
	listed := ordered
	if len(listed) > e.limits.MaxFindings {
		listed = listed[:e.limits.MaxFindings]
	}

	var payloadRecs []string
	summary := ""
	if a.narrative.Payload != nil {
		payloadRecs = a.narrative.Payload.Recommendations
		summary = strings.TrimSpace(a.narrative.Payload.Summary)
	}
	if summary == "" {
		summary = StaticSummary(ordered, score, tier)
	}

	report := &types.AnalysisReport{
		ReportID:               newReportID(),
		Language:               unit.Language,
		SecurityScore:          score,
		RiskPoints:             e.scorer.Points(a.merged),
		OverallRisk:            tier,
		Vulnerabilities:        listed,
		Recommendations:        Recommendations(ordered, payloadRecs, e.limits.MaxRecommendations),
		Summary:                summary,
		EvidenceIDs:            a.retrieval.IDs(),
		EvidenceSnippets:       evidence(a.retrieval),
		StaticFindingsCount:    len(a.static),
		NarrativeFindingsCount: len(a.accepted),
		TotalFindings:          len(a.merged),
		AIEnhanced:             a.narrative.Usable(),
		InputTruncation:        unit.Truncation,
		PromptTruncation:       a.narrative.InputTruncation,
		AnalyzedAt:             e.now().UTC(),
	}

	if unit.Truncation != nil {
		report.Degradations = append(report.Degradations, types.DegradationInputTruncated)
	}
	if a.retrieval.Unavailable {
		report.Degradations = append(report.Degradations, types.DegradationRetrievalUnavailable)
	}
	if a.narrative.Degradation != "" {
		report.Degradations = append(report.Degradations, a.narrative.Degradation)
	}
	return report
}

// SortBySeverity orders most severe first and keeps insertion order within a severity.
func SortBySeverity(findings []types.Finding) []types.Finding {
	out := make([]types.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// Recommendations lists finding remediations in severity order, then the
// model's general advice, without duplicates, up to limit.
func Recommendations(ordered []types.Finding, extra []string, limit int) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || len(out) >= limit {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	for _, f := range ordered {
		add(f.Remediation)
	}
	for _, r := range extra {
		add(r)
	}
	return out
}

// StaticSummary is used when the model supplied none.
func StaticSummary(ordered []types.Finding, score float64, tier types.RiskTier) string {
	if len(ordered) == 0 {
		return fmt.Sprintf("No known vulnerability patterns detected. Security score %.0f/100 (%s risk).", score, tier)
	}

	counts := make(map[types.Severity]int)
	for _, f := range ordered {
		counts[f.Severity]++
	}
	var parts []string
	for _, sev := range types.AllSeverities {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}

	noun := "issues"
	if len(ordered) == 1 {
		noun = "issue"
	}
	top := ordered[0]
	name := top.Title
	if name == "" {
		name = top.Category
	}
	return fmt.Sprintf("Found %d security %s (%s). Most severe: %s. Security score %.0f/100 (%s risk).",
		len(ordered), noun, strings.Join(parts, ", "), name, score, tier)
}

func evidence(r types.RetrievalResult) []types.EvidenceSnippet {
	out := make([]types.EvidenceSnippet, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, types.EvidenceSnippet{ID: it.ID, Snippet: it.Snippet, Score: it.Score})
	}
	return out
}
