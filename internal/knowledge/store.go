package knowledge

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"codeaudit/types"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const collectionName = "security_knowledge"

// Store is the in-memory vector index over the knowledge base. It is
// seeded once by NewStore and only read afterwards.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	entries    map[string]types.KnowledgeEntry
	logger     *zap.Logger
}

// NewStore embeds every entry and loads it into a fresh chromem collection.
func NewStore(ctx context.Context, entries []types.KnowledgeEntry, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Store, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create %s collection: %w", collectionName, err)
	}

	byID := make(map[string]types.KnowledgeEntry, len(entries))
	docs := make([]chromem.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			return nil, fmt.Errorf("knowledge entry with empty id")
		}
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate knowledge entry %s", entry.ID)
		}

		vec, err := embed(ctx, indexText(entry))
		if err != nil {
			return nil, fmt.Errorf("failed to embed knowledge entry %s: %w", entry.ID, err)
		}
		entry.Embedding = vec
		byID[entry.ID] = entry

		docs = append(docs, chromem.Document{
			ID:        entry.ID,
			Metadata:  map[string]string{"category": entry.Category},
			Embedding: vec,
			Content:   entry.Text,
		})
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to seed knowledge base: %w", err)
		}
	}
	logger.Info("knowledge base seeded", zap.Int("entries", len(docs)))

	return &Store{
		db:         db,
		collection: collection,
		embed:      embed,
		entries:    byID,
		logger:     logger,
	}, nil
}

// Count returns the number of indexed entries.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Entry looks up a seeded entry by id.
func (s *Store) Entry(id string) (types.KnowledgeEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Search returns up to k entries ranked by cosine similarity to query.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Match, error) {
	n := k
	if count := s.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:         r.ID,
			Category:   r.Metadata["category"],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// Match is one raw search hit.
type Match struct {
	ID         string
	Category   string
	Content    string
	Similarity float32
}

// indexText is what gets embedded: the category words followed by the guidance.
func indexText(e types.KnowledgeEntry) string {
	return strings.ReplaceAll(e.Category, "_", " ") + ": " + e.Text
}
