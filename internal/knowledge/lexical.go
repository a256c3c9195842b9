package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// jwThreshold is the minimum Jaro-Winkler score for two tokens to count as a
// fuzzy match. High enough to tolerate transcription misspellings without
// matching unrelated words.
const jwThreshold = 0.88

// Lexical is an in-memory [Retriever] that ranks chunks by fuzzy token
// overlap between the query and the chunk content. It needs no embeddings and
// no database, which makes it the fallback when knowledge.postgres_dsn is not
// configured, and a convenient fixture for tests.
//
// Safe for concurrent use.
type Lexical struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk // keyed by domain
}

// NewLexical returns a Lexical retriever seeded with the given chunks.
func NewLexical(chunks ...Chunk) *Lexical {
	l := &Lexical{chunks: make(map[string][]Chunk)}
	l.Add(chunks...)
	return l
}

// Add appends chunks to the retriever, grouped by their Domain.
func (l *Lexical) Add(chunks ...Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range chunks {
		l.chunks[c.Domain] = append(l.chunks[c.Domain], c)
	}
}

// Retrieve implements [Retriever]. Chunks with a zero score are excluded, so
// fewer than topK results may be returned.
func (l *Lexical) Retrieve(_ context.Context, domain, query string, topK int) ([]Result, error) {
	l.mu.RLock()
	candidates := l.chunks[domain]
	l.mu.RUnlock()

	if topK <= 0 || len(candidates) == 0 {
		return []Result{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := overlapScore(queryTokens, tokenize(c.Content))
		if score > 0 {
			results = append(results, Result{Chunk: c, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// tokenize lower-cases s and splits it into word tokens, dropping anything
// shorter than 3 runes (articles, punctuation fragments).
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// overlapScore is the fraction of query tokens that have a fuzzy match in the
// chunk tokens. Exact matches count fully; near matches count by their
// Jaro-Winkler score.
func overlapScore(queryTokens, chunkTokens []string) float64 {
	if len(chunkTokens) == 0 {
		return 0
	}
	chunkSet := make(map[string]struct{}, len(chunkTokens))
	for _, t := range chunkTokens {
		chunkSet[t] = struct{}{}
	}

	var sum float64
	for _, qt := range queryTokens {
		if _, ok := chunkSet[qt]; ok {
			sum++
			continue
		}
		best := 0.0
		for _, ct := range chunkTokens {
			if s := matchr.JaroWinkler(qt, ct, false); s > best {
				best = s
			}
		}
		if best >= jwThreshold {
			sum += best
		}
	}
	return sum / float64(len(queryTokens))
}
