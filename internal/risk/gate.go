package risk

import (
	"fmt"
	"strings"

	"codeaudit/types"

	"go.uber.org/zap"
)

// CorroborationMode selects the evidence a narrative-only finding needs.
type CorroborationMode string

const (
	// ModeEither accepts line overlap with another static category or a retrieved category match.
	ModeEither CorroborationMode = "either"
	// ModeLine accepts only line overlap with a static finding of a different category.
	ModeLine CorroborationMode = "line"
	// ModeCategory accepts only a retrieved knowledge entry of the same category.
	ModeCategory CorroborationMode = "category"
)

func ParseMode(s string) (CorroborationMode, error) {
	switch m := CorroborationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeEither, nil
	case ModeEither, ModeLine, ModeCategory:
		return m, nil
	default:
		return "", fmt.Errorf("unknown corroboration mode %q", s)
	}
}

// Gate is the false-positive filter for narrative findings.
type Gate struct {
	mode   CorroborationMode
	logger *zap.Logger
}

func NewGate(mode CorroborationMode, logger *zap.Logger) *Gate {
	if mode == "" {
		mode = ModeEither
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{mode: mode, logger: logger}
}

func (g *Gate) Mode() CorroborationMode {
	return g.mode
}

// Filter splits narrative findings into accepted and rejected. A finding that
// overlaps a static finding of its own category always passes; it is a
// confirmation, not a narrative-only claim.
func (g *Gate) Filter(static, narrative []types.Finding, retrieval types.RetrievalResult) (accepted, rejected []types.Finding) {
	for _, n := range narrative {
		if confirmsStatic(n, static) {
			accepted = append(accepted, n)
			continue
		}

		byLine := overlapsOtherCategory(n, static)
		byCategory := retrieval.HasCategory(n.Category)

		ok := false
		switch g.mode {
		case ModeLine:
			ok = byLine
		case ModeCategory:
			ok = byCategory
		default:
			ok = byLine || byCategory
		}

		if ok {
			accepted = append(accepted, n)
			if sharesCategory(n, static) {
				g.logger.Info("narrative finding repeats a static category on other lines, kept separate",
					zap.String("category", n.Category),
					zap.Ints("lines", n.LineNumbers))
			}
			continue
		}
		rejected = append(rejected, n)
		g.logger.Info("rejected uncorroborated narrative finding",
			zap.String("category", n.Category),
			zap.Ints("lines", n.LineNumbers),
			zap.String("mode", string(g.mode)))
	}
	return accepted, rejected
}

func confirmsStatic(n types.Finding, static []types.Finding) bool {
	for _, s := range static {
		if s.Category == n.Category && s.OverlapsLines(n.LineNumbers) {
			return true
		}
	}
	return false
}

func sharesCategory(n types.Finding, static []types.Finding) bool {
	for _, s := range static {
		if s.Category == n.Category {
			return true
		}
	}
	return false
}

func overlapsOtherCategory(n types.Finding, static []types.Finding) bool {
	for _, s := range static {
		if s.Category != n.Category && s.OverlapsLines(n.LineNumbers) {
			return true
		}
	}
	return false
}
