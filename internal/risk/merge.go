package risk

import "codeaudit/types"

// Merge deduplicates static and accepted narrative findings. Findings that
// share a category and at least one line collapse into one, repeatedly,
// until no such pair remains. Order is first appearance, static first.
func Merge(static, narrative []types.Finding) []types.Finding {
	merged := make([]types.Finding, 0, len(static)+len(narrative))
	for _, f := range static {
		merged = append(merged, clone(f))
	}
	for _, f := range narrative {
		merged = append(merged, clone(f))
	}

	for changed := true; changed; {
		changed = false
		for i := 0; i < len(merged) && !changed; i++ {
			for j := i + 1; j < len(merged); j++ {
				if merged[i].Category != merged[j].Category || !merged[i].OverlapsLines(merged[j].LineNumbers) {
					continue
				}
				merged[i] = combine(merged[i], merged[j])
				merged = append(merged[:j], merged[j+1:]...)
				changed = true
				break
			}
		}
	}
	return merged
}

// combine keeps the union of lines and the higher severity. Narrative text
// wins over static text when present.
func combine(a, b types.Finding) types.Finding {
	out := a
	out.LineNumbers = types.UnionLines(a.LineNumbers, b.LineNumbers)
	out.Severity = types.MaxSeverity(a.Severity, b.Severity)

	preferred, other := a, b
	if b.Origin == types.OriginNarrative && a.Origin != types.OriginNarrative {
		preferred, other = b, a
	}
	out.Description = pick(preferred.Description, other.Description)
	out.Remediation = pick(preferred.Remediation, other.Remediation)
	out.Title = pick(a.Title, b.Title)
	out.WeaknessID = pick(a.WeaknessID, b.WeaknessID)

	if a.Origin == types.OriginStatic || b.Origin == types.OriginStatic {
		out.Origin = types.OriginStatic
	}
	return out
}

func clone(f types.Finding) types.Finding {
	f.LineNumbers = types.NormalizeLines(f.LineNumbers)
	return f
}

func pick(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
