package inference_engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"codeaudit/types"
)

// Prompts for security analysis of a single code unit
const (
	// SecurityAnalysisPrompt asks the model to validate static findings and
	// report additional vulnerabilities as one JSON object.
	SecurityAnalysisPrompt = `You are a senior application security auditor.
Review the %s code below. Verify the static analysis findings (drop false positives), find vulnerabilities static analysis missed, and cite exact line numbers.

=== ALLOWED CATEGORIES ===
Use only these category ids and classifier ids:
%s

=== STATIC ANALYSIS FINDINGS ===
%s

=== SECURITY KNOWLEDGE ===
%s

=== CODE ===
%s
=== END CODE ===

=== OUTPUT FORMAT ===
Return ONLY one JSON object (no markdown, no prose) valid against this JSON schema:
%s

Severity must be one of critical, high, medium, low. Only report vulnerabilities that actually exist in the code.`

	// RepairPrompt asks the model to reformat its own previous output.
	RepairPrompt = `Convert the following text into one strictly valid JSON object matching this JSON schema. Output only the JSON object, no markdown fences and no explanation.

=== SCHEMA ===
%s

=== TEXT ===
%s`
)

// PromptInput is everything the analysis prompt is built from.
type PromptInput struct {
	Language       string
	Code           string
	StaticFindings []types.Finding
	Knowledge      []types.RetrievedSnippet
	Categories     []types.CategoryInfo
}

// BuildAnalysisPrompt renders the analysis prompt. Knowledge snippets are
// included in rank order while they fit in contextBudget tokens.
func BuildAnalysisPrompt(in PromptInput, counter TokenCounter, contextBudget int) string {
	if counter == nil {
		counter = ApproxCounter{}
	}
	lang := in.Language
	if lang == "" || lang == "auto" {
		lang = "source"
	}

	return fmt.Sprintf(SecurityAnalysisPrompt,
		lang,
		formatCategories(in.Categories),
		formatStaticFindings(in.StaticFindings),
		formatKnowledge(in.Knowledge, counter, contextBudget),
		numberLines(in.Code),
		PayloadSchema(),
	)
}

// BuildRepairPrompt renders the one-shot reformatting request.
func BuildRepairPrompt(raw string) string {
	return fmt.Sprintf(RepairPrompt, PayloadSchema(), compact(raw))
}

func formatCategories(cats []types.CategoryInfo) string {
	if len(cats) == 0 {
		return "(any)"
	}
	var b strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&b, "- %s (%s, %s, default severity %s)\n", c.ID, c.DisplayName, c.WeaknessID, c.DefaultSeverity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStaticFindings(findings []types.Finding) string {
	if len(findings) == 0 {
		return "None detected."
	}
	type summary struct {
		Category    string `json:"category"`
		Severity    string `json:"severity"`
		LineNumbers []int  `json:"line_numbers"`
		WeaknessID  string `json:"weakness_id"`
	}
	out := make([]summary, 0, len(findings))
	for _, f := range findings {
		out = append(out, summary{
			Category:    f.Category,
			Severity:    string(f.Severity),
			LineNumbers: f.LineNumbers,
			WeaknessID:  f.WeaknessID,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "None detected."
	}
	return string(data)
}

func formatKnowledge(snippets []types.RetrievedSnippet, counter TokenCounter, budget int) string {
	if len(snippets) == 0 {
		return "No additional context available."
	}
	var b strings.Builder
	used := 0
	for _, s := range snippets {
		entry := fmt.Sprintf("[%s] %s\n", s.ID, s.Snippet)
		cost := counter.Count(entry)
		if budget > 0 && used+cost > budget {
			continue
		}
		used += cost
		b.WriteString(entry)
	}
	if b.Len() == 0 {
		return "No additional context available."
	}
	return strings.TrimRight(b.String(), "\n")
}

// numberLines prefixes each line with its 1-based number so the model can cite lines.
func numberLines(code string) string {
	lines := strings.Split(code, "\n")
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%4d | %s\n", i+1, l)
	}
	return strings.TrimRight(b.String(), "\n")
}
