package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func TestFindMatches_ExactHash(t *testing.T) {
	e := New(DefaultThresholds())
	existing := &types.Memory{ID: "mem:a", Content: "the project uses Go", ContentHash: "abc123"}

	matches := e.FindMatches("anything, doesn't matter", "abc123", []*types.Memory{existing})

	require.Len(t, matches, 1)
	assert.Equal(t, types.DedupMatchExact, matches[0].MatchType)
	assert.Equal(t, 1.0, matches[0].Score)
}

func TestFindMatches_NearDuplicate(t *testing.T) {
	e := New(Thresholds{Near: 0.85, Semantic: 0.70})
	existing := &types.Memory{
		ID:          "mem:a",
		Content:     "The user prefers tabs over spaces for indentation",
		ContentHash: "hash-a",
	}

	matches := e.FindMatches("The user prefers tabs over spaces for indentation.", "hash-b", []*types.Memory{existing})

	require.Len(t, matches, 1)
	assert.Equal(t, types.DedupMatchNear, matches[0].MatchType)
	assert.GreaterOrEqual(t, matches[0].Score, 0.85)
}

func TestFindMatches_SemanticOnly(t *testing.T) {
	e := New(Thresholds{Near: 0.85, Semantic: 0.30})
	existing := &types.Memory{
		ID:          "mem:a",
		Content:     "deploy pipeline uses GitHub Actions runners for CI",
		ContentHash: "hash-a",
	}

	matches := e.FindMatches("our CI runners for the deploy pipeline come from GitHub Actions", "hash-b", []*types.Memory{existing})

	require.Len(t, matches, 1)
	assert.Equal(t, types.DedupMatchSemantic, matches[0].MatchType)
}

func TestFindMatches_NoMatchBelowThresholds(t *testing.T) {
	e := New(DefaultThresholds())
	existing := &types.Memory{
		ID:          "mem:a",
		Content:     "completely unrelated content about cooking pasta",
		ContentHash: "hash-a",
	}

	matches := e.FindMatches("the database schema for invoices", "hash-b", []*types.Memory{existing})

	assert.Empty(t, matches)
}

func TestFindMatches_SortedDescending(t *testing.T) {
	e := New(Thresholds{Near: 0.85, Semantic: 0.20})
	near := &types.Memory{ID: "mem:near", Content: "the api uses REST over HTTP for external calls", ContentHash: "h1"}
	semantic := &types.Memory{ID: "mem:sem", Content: "external calls go through HTTP somewhere", ContentHash: "h2"}

	matches := e.FindMatches("the api uses REST over HTTP for external calls.", "h3", []*types.Memory{semantic, near})

	require.Len(t, matches, 2)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestSimilarity_IdenticalStringsScoreOne(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("same content here", "same content here"))
}

func TestSimilarity_EmptyStringsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("", ""))
}
