package scanner

import (
	"fmt"

	"codeaudit/internal/catalog"
	"codeaudit/types"

	"go.uber.org/zap"
)

// Detector scans a code unit against the rule set. It holds no mutable
// state after construction and is safe for concurrent use.
type Detector struct {
	catalog *catalog.Catalog
	rules   []Rule
	logger  *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRules replaces the built-in rule set.
func WithRules(rules []Rule) Option {
	return func(d *Detector) {
		d.rules = rules
	}
}

// NewDetector creates a detector bound to cat. Every rule must name a
// category present in the catalog.
func NewDetector(cat *catalog.Catalog, opts ...Option) (*Detector, error) {
	d := &Detector{
		catalog: cat,
		rules:   DefaultRules(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, rule := range d.rules {
		if _, ok := cat.Get(rule.Category); !ok {
			return nil, fmt.Errorf("rule references unknown category %q", rule.Category)
		}
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("rule for %q has no patterns", rule.Category)
		}
	}
	return d, nil
}

// Scan returns at most one finding per category, in rule order. All matching
// lines of a category are folded into that finding's line set.
func (d *Detector) Scan(unit types.CodeUnit) []types.Finding {
	if unit.Text == "" {
		return nil
	}
	lines := unit.Lines()
	findings := make([]types.Finding, 0)

	for _, rule := range d.rules {
		if rule.Requires != nil && !rule.Requires.MatchString(unit.Text) {
			continue
		}
		if rule.Unless != nil && rule.Unless.MatchString(unit.Text) {
			continue
		}

		matched := matchLines(lines, rule.Patterns)
		if len(matched) == 0 {
			continue
		}

		cat, _ := d.catalog.Get(rule.Category)
		findings = append(findings, types.Finding{
			Category:    cat.ID,
			Title:       cat.DisplayName,
			Severity:    cat.Severity,
			Description: cat.Description,
			LineNumbers: matched,
			Remediation: cat.Remediation,
			WeaknessID:  cat.WeaknessID,
			Origin:      types.OriginStatic,
		})
		d.logger.Debug("static match",
			zap.String("category", cat.ID),
			zap.Ints("lines", matched))
	}
	return findings
}

// PatternCount reports how many line patterns back a category.
func (d *Detector) PatternCount(category string) int {
	n := 0
	for _, rule := range d.rules {
		if rule.Category == category {
			n += len(rule.Patterns)
		}
	}
	return n
}

func matchLines(lines []string, patterns []Pattern) []int {
	var matched []int
	for i, text := range lines {
		for _, p := range patterns {
			if !p.Match.MatchString(text) {
				continue
			}
			if p.Exclude != nil && p.Exclude.MatchString(text) {
				continue
			}
			matched = append(matched, i+1)
			break
		}
	}
	return matched
}
