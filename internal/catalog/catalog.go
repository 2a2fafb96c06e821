package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"codeaudit/types"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Category is one entry of the vulnerability catalog.
type Category struct {
	ID          string
	DisplayName string
	Severity    types.Severity
	WeaknessID  string
	OWASP       string
	Description string
	Remediation string
	// Aliases are free-text names narrative findings may use for this category.
	Aliases []string
}

// Catalog is an immutable, ordered registry of categories.
type Catalog struct {
	categories *orderedmap.OrderedMap[string, Category]
	aliases    map[string]string
	weaknesses map[string]string
}

// New builds a catalog, preserving the order of cats.
func New(cats []Category) (*Catalog, error) {
	c := &Catalog{
		categories: orderedmap.New[string, Category](),
		aliases:    make(map[string]string),
		weaknesses: make(map[string]string),
	}
	for _, cat := range cats {
		if cat.ID == "" {
			return nil, fmt.Errorf("category with empty id")
		}
		if !cat.Severity.Valid() {
			return nil, fmt.Errorf("category %s: invalid severity %q", cat.ID, cat.Severity)
		}
		if _, exists := c.categories.Get(cat.ID); exists {
			return nil, fmt.Errorf("duplicate category %s", cat.ID)
		}
		c.categories.Set(cat.ID, cat)

		c.aliases[normalize(cat.ID)] = cat.ID
		c.aliases[normalize(cat.DisplayName)] = cat.ID
		for _, alias := range cat.Aliases {
			key := normalize(alias)
			if owner, taken := c.aliases[key]; taken && owner != cat.ID {
				return nil, fmt.Errorf("alias %q claimed by both %s and %s", alias, owner, cat.ID)
			}
			c.aliases[key] = cat.ID
		}
		if w := normalizeWeakness(cat.WeaknessID); w != "" {
			if _, taken := c.weaknesses[w]; !taken {
				c.weaknesses[w] = cat.ID
			}
		}
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultCategories)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

func (c *Catalog) Len() int {
	return c.categories.Len()
}

func (c *Catalog) Get(id string) (Category, bool) {
	return c.categories.Get(id)
}

// List returns categories in catalog order.
func (c *Catalog) List() []Category {
	out := make([]Category, 0, c.categories.Len())
	for pair := c.categories.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Infos is the read-only discovery listing.
func (c *Catalog) Infos() []types.CategoryInfo {
	out := make([]types.CategoryInfo, 0, c.categories.Len())
	for pair := c.categories.Oldest(); pair != nil; pair = pair.Next() {
		cat := pair.Value
		out = append(out, types.CategoryInfo{
			ID:              cat.ID,
			DisplayName:     cat.DisplayName,
			DefaultSeverity: cat.Severity,
			WeaknessID:      cat.WeaknessID,
			OWASP:           cat.OWASP,
		})
	}
	return out
}

// Canonicalize maps a free-text category name to a catalog id.
// Exact id, display name and alias matches win; otherwise the first
// category (in catalog order) whose alias appears as a whole-word run
// inside the name is returned.
func (c *Catalog) Canonicalize(name string) (string, bool) {
	key := normalize(name)
	if key == "" {
		return "", false
	}
	if id, ok := c.aliases[key]; ok {
		return id, true
	}
	padded := "_" + key + "_"
	for pair := c.categories.Oldest(); pair != nil; pair = pair.Next() {
		cat := pair.Value
		candidates := append([]string{cat.ID, cat.DisplayName}, cat.Aliases...)
		for _, alias := range candidates {
			a := normalize(alias)
			if a != "" && strings.Contains(padded, "_"+a+"_") {
				return cat.ID, true
			}
		}
	}
	return "", false
}

// ByWeakness resolves a classifier id such as "CWE-89" to a category id.
func (c *Catalog) ByWeakness(weaknessID string) (string, bool) {
	w := normalizeWeakness(weaknessID)
	if w == "" {
		return "", false
	}
	id, ok := c.weaknesses[w]
	return id, ok
}

// KnownWeakness reports whether weaknessID names any catalog classifier.
func (c *Catalog) KnownWeakness(weaknessID string) bool {
	_, ok := c.ByWeakness(weaknessID)
	return ok
}

func normalize(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// normalizeWeakness keeps only the numeric part of "CWE-89", "cwe_89" or "89".
func normalizeWeakness(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "cwe")
	s = strings.TrimLeft(s, "-_: ")
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return strings.TrimLeft(s, "0")
}
