package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func TestFullTextSearch_MatchesContent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "this project uses Go and SQLite", MemoryType: types.MemoryTypeSemantic}))
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:2", Content: "unrelated note about lunch", MemoryType: types.MemoryTypeWorking}))

	result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "SQLite"})

	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "mem:1", result.Items[0].ID)
}

func TestFullTextSearch_EmptyQueryListsByCreatedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "first", MemoryType: types.MemoryTypeWorking}))
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:2", Content: "second", MemoryType: types.MemoryTypeWorking}))

	result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: ""})

	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
}

func TestFullTextSearch_FuzzyFallbackRelaxesMultiTermQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "deploy pipeline uses GitHub Actions", MemoryType: types.MemoryTypeSemantic}))

	result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "GitHub nonexistentword", FuzzyFallback: true})

	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "mem:1", result.Items[0].ID)
}

func TestSanitiseFTSQuery_StripsStopWordsAndSpecialChars(t *testing.T) {
	got := sanitiseFTSQuery(`What did the user say about "deployment"?`)

	assert.Equal(t, "user* OR say* OR deployment*", got)
}
