package knowledge

import (
	"context"
	"strings"

	"codeaudit/types"

	"go.uber.org/zap"
)

const (
	DefaultK            = 3
	MaxK                = 5
	DefaultSnippetChars = 300
)

// Searcher is the read side of the knowledge store.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Match, error)
}

// QueryChars bounds how much of the code is embedded as the query.
const QueryChars = 1000

// Retriever turns a code unit and its static categories into ranked guidance.
type Retriever struct {
	searcher     Searcher
	k            int
	snippetChars int
	logger       *zap.Logger
}

// NewRetriever clamps k into [1, MaxK]. A nil searcher yields a retriever
// that always reports the store as unavailable.
func NewRetriever(searcher Searcher, k, snippetChars int, logger *zap.Logger) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{searcher: searcher, k: k, snippetChars: snippetChars, logger: logger}
}

// BuildQuery renders "<language> vulnerabilities: <cat1>, <cat2>" when static
// categories were found, otherwise "<language> code security review:". The
// first QueryChars characters of code follow on the next line.
func BuildQuery(language string, categories []string, code string) string {
	lang := strings.TrimSpace(language)
	if lang == "" || lang == "auto" {
		lang = "source"
	}
	head := lang + " code security review:"
	if len(categories) > 0 {
		head = lang + " vulnerabilities: " + strings.Join(categories, ", ")
	}

	excerpt, _ := types.TruncateText(strings.TrimSpace(code), QueryChars)
	if excerpt == "" {
		if len(categories) > 0 {
			return head
		}
		return lang + " code security vulnerabilities and secure coding best practices"
	}
	return head + "\n" + excerpt
}

// Retrieve never fails: store errors produce an empty result marked Unavailable.
func (r *Retriever) Retrieve(ctx context.Context, language string, categories []string, code string) types.RetrievalResult {
	query := BuildQuery(language, categories, code)
	result := types.RetrievalResult{Query: query}

	if r.searcher == nil {
		result.Unavailable = true
		return result
	}

	matches, err := r.searcher.Search(ctx, query, r.k)
	if err != nil {
		r.logger.Warn("knowledge retrieval unavailable", zap.Error(err))
		result.Unavailable = true
		return result
	}

	for i, m := range matches {
		if i >= r.k {
			break
		}
		snippet, _ := types.TruncateText(m.Content, r.snippetChars)
		result.Items = append(result.Items, types.RetrievedSnippet{
			ID:       m.ID,
			Category: m.Category,
			Snippet:  snippet,
			Score:    m.Similarity,
		})
	}
	r.logger.Debug("knowledge retrieved", zap.Strings("ids", result.IDs()))
	return result
}
