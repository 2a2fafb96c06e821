package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// ============================================================================
// SEVERITY & ORIGIN
// ============================================================================

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// AllSeverities lists severities from most to least severe.
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// ParseSeverity normalizes free text into one of the four severities.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; ok {
		return sev, true
	}
	return "", false
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type Origin string

const (
	OriginStatic    Origin = "static"
	OriginNarrative Origin = "narrative"
)

// ============================================================================
// CODE UNIT
// ============================================================================

// Truncation records how much of a text was kept and how much was dropped.
type Truncation struct {
	AppliedLength  int `json:"applied_length"`
	RemainingChars int `json:"remaining_chars"`
}

// CodeUnit is one submitted piece of source text. Text is already capped.
type CodeUnit struct {
	Text           string
	Language       string
	OriginalLength int
	Truncation     *Truncation
}

// NewCodeUnit applies the hard input cap. A maxChars <= 0 disables the cap.
func NewCodeUnit(text, language string, maxChars int) CodeUnit {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		lang = "auto"
	}
	kept, trunc := TruncateText(text, maxChars)
	return CodeUnit{
		Text:           kept,
		Language:       lang,
		OriginalLength: utf8.RuneCountInString(text),
		Truncation:     trunc,
	}
}

// Lines splits the unit into lines; line i+1 is Lines()[i].
func (u CodeUnit) Lines() []string {
	return strings.Split(u.Text, "\n")
}

func (u CodeUnit) LineCount() int {
	return strings.Count(u.Text, "\n") + 1
}

// TruncateText keeps the first limit characters (runes) of text.
func TruncateText(text string, limit int) (string, *Truncation) {
	if limit <= 0 {
		return text, nil
	}
	total := utf8.RuneCountInString(text)
	if total <= limit {
		return text, nil
	}
	runes := []rune(text)
	return string(runes[:limit]), &Truncation{AppliedLength: limit, RemainingChars: total - limit}
}

// RemainderMarker is appended wherever a truncated text is forwarded.
func RemainderMarker(remaining int) string {
	return fmt.Sprintf("... (+%d more characters)", remaining)
}

// ============================================================================
// FINDINGS
// ============================================================================

type Finding struct {
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	LineNumbers []int    `json:"line_numbers"`
	Remediation string   `json:"remediation"`
	WeaknessID  string   `json:"weakness_id"`
	Origin      Origin   `json:"origin"`
}

// OverlapsLines reports whether any line of f appears in lines.
func (f Finding) OverlapsLines(lines []int) bool {
	if len(f.LineNumbers) == 0 || len(lines) == 0 {
		return false
	}
	set := make(map[int]struct{}, len(f.LineNumbers))
	for _, l := range f.LineNumbers {
		set[l] = struct{}{}
	}
	for _, l := range lines {
		if _, ok := set[l]; ok {
			return true
		}
	}
	return false
}

// NormalizeLines sorts, dedups and drops non-positive line numbers.
func NormalizeLines(lines []int) []int {
	out := make([]int, 0, len(lines))
	seen := make(map[int]struct{}, len(lines))
	for _, l := range lines {
		if l <= 0 {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// UnionLines returns the sorted union of a and b.
func UnionLines(a, b []int) []int {
	merged := make([]int, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return NormalizeLines(merged)
}

// ============================================================================
// KNOWLEDGE
// ============================================================================

type KnowledgeEntry struct {
	ID        string
	Category  string
	Text      string
	Embedding []float32
}

type RetrievedSnippet struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Snippet  string  `json:"snippet"`
	Score    float32 `json:"score"`
}

// RetrievalResult is ranked best first. Unavailable marks a degraded lookup.
type RetrievalResult struct {
	Query       string
	Items       []RetrievedSnippet
	Unavailable bool
}

func (r RetrievalResult) IDs() []string {
	ids := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func (r RetrievalResult) HasCategory(category string) bool {
	for _, it := range r.Items {
		if it.Category == category {
			return true
		}
	}
	return false
}

// ============================================================================
// REQUESTS & REPORTS
// ============================================================================

type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// Degradation names a reason the report is less complete than a full run.
type Degradation string

const (
	DegradationInputTruncated       Degradation = "input_truncated"
	DegradationRetrievalUnavailable Degradation = "retrieval_unavailable"
	DegradationNarrativeDisabled    Degradation = "narrative_disabled"
	DegradationNarrativeTimeout     Degradation = "narrative_timeout"
	DegradationNarrativeUnavailable Degradation = "narrative_unavailable"
	DegradationNarrativeUnparseable Degradation = "narrative_unparseable"
)

type AnalysisRequest struct {
	Code      string `json:"code,omitempty"`
	Language  string `json:"language,omitempty"`
	RepoURL   string `json:"repoUrl,omitempty"`
	InputType string `json:"inputType,omitempty"`
	FileName  string `json:"file_name,omitempty"`
}

type EvidenceSnippet struct {
	ID      string  `json:"id"`
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}

type AnalysisReport struct {
	ReportID               string            `json:"report_id"`
	Language               string            `json:"language"`
	SecurityScore          float64           `json:"security_score"`
	RiskPoints             float64           `json:"risk_points"`
	OverallRisk            RiskTier          `json:"overall_risk"`
	Vulnerabilities        []Finding         `json:"vulnerabilities"`
	Recommendations        []string          `json:"recommendations"`
	Summary                string            `json:"summary"`
	EvidenceIDs            []string          `json:"evidence_ids"`
	EvidenceSnippets       []EvidenceSnippet `json:"evidence_snippets"`
	StaticFindingsCount    int               `json:"static_findings_count"`
	NarrativeFindingsCount int               `json:"narrative_findings_count"`
	TotalFindings          int               `json:"total_findings"`
	AIEnhanced             bool              `json:"ai_enhanced"`
	InputTruncation        *Truncation       `json:"input_truncation,omitempty"`
	PromptTruncation       *Truncation       `json:"prompt_truncation,omitempty"`
	Degradations           []Degradation     `json:"degradations,omitempty"`
	AnalyzedAt             time.Time         `json:"analyzed_at"`
}

// Truncated reports whether any text was cut before analysis.
func (r *AnalysisReport) Truncated() bool {
	return r.InputTruncation != nil || r.PromptTruncation != nil
}

func (r *AnalysisReport) HasDegradation(d Degradation) bool {
	for _, x := range r.Degradations {
		if x == d {
			return true
		}
	}
	return false
}

type BatchResult struct {
	FileName string          `json:"file_name"`
	Report   *AnalysisReport `json:"analysis,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CategoryInfo is the discovery view of one catalog category.
type CategoryInfo struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	DefaultSeverity Severity `json:"default_severity"`
	WeaknessID      string   `json:"weakness_id"`
	OWASP           string   `json:"owasp"`
	PatternCount    int      `json:"pattern_count"`
}
