package inference_engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// NarrativeFinding is one vulnerability proposed by the model.
type NarrativeFinding struct {
	Category    string `json:"category" jsonschema:"description=Vulnerability category id from the allowed list"`
	Title       string `json:"title,omitempty" jsonschema:"description=Short vulnerability name"`
	Severity    string `json:"severity" jsonschema:"enum=critical,enum=high,enum=medium,enum=low"`
	Description string `json:"description" jsonschema:"description=Why the code is vulnerable"`
	LineNumbers []int  `json:"line_numbers" jsonschema:"description=1-based line numbers in the submitted code"`
	Remediation string `json:"remediation" jsonschema:"description=Concrete fix"`
	WeaknessID  string `json:"weakness_id,omitempty" jsonschema:"description=CWE identifier such as CWE-89"`
}

// UnmarshalJSON also accepts the issue/explanation/fix_suggestion/cwe field
// names. Line numbers may be a list, a single number, or strings such as
// "12" or "12-14"; values that are none of these are dropped.
func (f *NarrativeFinding) UnmarshalJSON(data []byte) error {
	var raw struct {
		Category      string          `json:"category"`
		Type          string          `json:"type"`
		Issue         string          `json:"issue"`
		Title         string          `json:"title"`
		Severity      string          `json:"severity"`
		Description   string          `json:"description"`
		Explanation   string          `json:"explanation"`
		LineNumbers   json.RawMessage `json:"line_numbers"`
		Line          json.RawMessage `json:"line"`
		Remediation   string          `json:"remediation"`
		FixSuggestion string          `json:"fix_suggestion"`
		WeaknessID    string          `json:"weakness_id"`
		CWE           string          `json:"cwe"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Category = firstNonEmpty(raw.Category, raw.Type, raw.Issue, raw.Title)
	f.Title = firstNonEmpty(raw.Title, raw.Issue)
	f.Severity = raw.Severity
	f.Description = firstNonEmpty(raw.Description, raw.Explanation)
	f.Remediation = firstNonEmpty(raw.Remediation, raw.FixSuggestion)
	f.WeaknessID = firstNonEmpty(raw.WeaknessID, raw.CWE)

	lines := decodeLines(raw.LineNumbers)
	if len(lines) == 0 {
		lines = decodeLines(raw.Line)
	}
	f.LineNumbers = lines
	return nil
}

// NarrativePayload is the structured enrichment the model must return.
type NarrativePayload struct {
	Vulnerabilities []NarrativeFinding `json:"vulnerabilities" jsonschema:"description=Confirmed or newly found vulnerabilities"`
	Summary         string             `json:"summary" jsonschema:"description=One paragraph security assessment"`
	Recommendations []string           `json:"recommendations,omitempty" jsonschema:"description=Generic hardening recommendations"`
}

// PayloadSchema renders the JSON schema for NarrativePayload.
func PayloadSchema() string {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := r.Reflect(&NarrativePayload{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// maxLineSpan bounds how many lines one "a-b" range may expand to.
const maxLineSpan = 500

func decodeLines(raw json.RawMessage) []int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var out []int
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		for _, item := range items {
			out = append(out, lineValues(item)...)
		}
	} else {
		out = lineValues(raw)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func lineValues(raw json.RawMessage) []int {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return []int{int(n)}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseLineSpec(s)
	}
	return nil
}

// parseLineSpec reads "12", "12-14" and comma separated lists of both.
func parseLineSpec(spec string) []int {
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if from, to, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(from))
			b, errB := strconv.Atoi(strings.TrimSpace(to))
			if errA != nil || errB != nil || a > b || b-a >= maxLineSpan {
				continue
			}
			for l := a; l <= b; l++ {
				out = append(out, l)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
