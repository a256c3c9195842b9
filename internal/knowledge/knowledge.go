// Package knowledge provides domain knowledge retrieval for analysis prompts.
//
// Knowledge is stored as text chunks scoped to a domain (e.g.
// "financial_banking"). Two retriever implementations exist:
//
//   - [Store], backed by PostgreSQL with a pgvector HNSW index for semantic
//     nearest-neighbour search over embedded chunks.
//   - [Lexical], an in-memory fallback that ranks chunks by fuzzy token
//     overlap. Used when no database is configured.
//
// Both satisfy [Retriever] and are safe for concurrent use.
package knowledge

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/conviai/convi/internal/conversation"
)

// MaxQueryBytes caps the retrieval query built from conversation turns.
// Long calls would otherwise blow past embedding model input limits without
// improving retrieval quality.
const MaxQueryBytes = 500

// Chunk is a single unit of domain knowledge.
type Chunk struct {
	// ID uniquely identifies the chunk within its domain.
	ID string

	// Domain scopes the chunk (e.g. "financial_banking").
	Domain string

	// Content is the knowledge text.
	Content string

	// Source names where the chunk came from (document title, URL, policy
	// reference). Informational only.
	Source string

	// Embedding is the chunk's vector representation. May be nil for chunks
	// that have not been embedded (lexical retrieval does not need it).
	Embedding []float32
}

// Result is a retrieved chunk with its relevance score.
type Result struct {
	Chunk Chunk

	// Score is retriever-specific: cosine similarity in [0, 1] for vector
	// search, fuzzy match score in [0, 1] for lexical retrieval. Higher is
	// more relevant.
	Score float64
}

// Retriever finds the chunks most relevant to a query within a domain.
type Retriever interface {
	// Retrieve returns up to topK chunks from domain ranked by descending
	// relevance to query. An unknown domain yields an empty slice, not an
	// error.
	Retrieve(ctx context.Context, domain, query string, topK int) ([]Result, error)
}

// BuildQuery derives a retrieval query from normalized conversation turns by
// joining their English text. The result is capped at [MaxQueryBytes] bytes,
// cut at a rune boundary.
func BuildQuery(turns []conversation.ConversationTurn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.NormalizedTextEN != "" {
			parts = append(parts, t.NormalizedTextEN)
		}
	}
	q := strings.Join(parts, " ")
	if len(q) <= MaxQueryBytes {
		return q
	}
	cut := MaxQueryBytes
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	return q[:cut]
}
