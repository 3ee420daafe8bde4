// Package dedup implements the Deduplication Engine (C8): three similarity
// layers from cheap to expensive, pure and stateless so every other
// component can call it without holding a store reference.
package dedup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// Thresholds holds the three layers' similarity cutoffs.
type Thresholds struct {
	Near     float64 // default 0.85
	Semantic float64 // default 0.70
}

// DefaultThresholds returns the configuration defaults named in the spec's
// Configuration section.
func DefaultThresholds() Thresholds {
	return Thresholds{Near: 0.85, Semantic: 0.70}
}

// Match is one candidate's similarity to the query, annotated with the
// layer that produced the strongest score.
type Match struct {
	Memory    *types.Memory
	Score     float64
	MatchType types.DedupMatchType
}

// Engine runs the three-layer comparison. It holds no state beyond its
// configured thresholds.
type Engine struct {
	thresholds Thresholds
}

// New creates a dedup Engine with the given thresholds.
func New(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds}
}

// FindMatches compares content/hash against candidates and returns every
// match at or above the weakest configured threshold, sorted by score
// descending. Each candidate is scored by its strongest applicable layer:
// exact hash equality short-circuits to a DedupMatchExact score of 1.0;
// otherwise near (trigram/Jaccard) is tried, then semantic (token-set).
func (e *Engine) FindMatches(content, contentHash string, candidates []*types.Memory) []Match {
	queryTrigrams := trigramShingles(normalize(content))
	queryTokens := tokenSet(content)

	var matches []Match
	for _, c := range candidates {
		if c.ContentHash == contentHash {
			matches = append(matches, Match{Memory: c, Score: 1.0, MatchType: types.DedupMatchExact})
			continue
		}

		near := jaccard(queryTrigrams, trigramShingles(normalize(c.Content)))
		if near >= e.thresholds.Near {
			matches = append(matches, Match{Memory: c, Score: near, MatchType: types.DedupMatchNear})
			continue
		}

		semantic := jaccard(queryTokens, tokenSet(c.Content))
		if semantic >= e.thresholds.Semantic {
			matches = append(matches, Match{Memory: c, Score: semantic, MatchType: types.DedupMatchSemantic})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// Similarity returns the best-effort similarity between two content
// strings, used by the consolidation engine's clustering pass. It computes
// both the near layer's trigram score and the semantic layer's token-set
// score and returns the higher of the two.
func Similarity(a, b string) float64 {
	near := jaccard(trigramShingles(normalize(a)), trigramShingles(normalize(b)))
	semantic := jaccard(tokenSet(a), tokenSet(b))
	if near > semantic {
		return near
	}
	return semantic
}

// normalize lowercases and collapses whitespace, the first step of the near
// layer's trigram shingling. The semantic layer tokenizes the raw content.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenize performs Unicode word segmentation: a token is a maximal run of
// letters or digits. This resolves the open question of how to tokenize
// non-ASCII content without pulling in an NLP dependency.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenSet returns the distinct token set of s, for the semantic layer.
func tokenSet(s string) map[string]struct{} {
	tokens := tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// trigramShingles builds 3-token shingles over the normalized string's
// token stream, for the near layer. Falls back to the raw token set when
// there are fewer than 3 tokens.
func trigramShingles(s string) map[string]struct{} {
	tokens := tokenize(s)
	if len(tokens) < 3 {
		set := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			set[t] = struct{}{}
		}
		return set
	}
	set := make(map[string]struct{}, len(tokens)-2)
	for i := 0; i+3 <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+3], " ")] = struct{}{}
	}
	return set
}

// jaccard computes |A ∩ B| / |A ∪ B| over two string sets, 0 when both are
// empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
