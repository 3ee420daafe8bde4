package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func openTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAndGet_RoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mem := &types.Memory{
		ID:         "mem:1",
		Content:    "this project uses Go",
		MemoryType: types.MemoryTypeSemantic,
		Importance: 0.6,
		Confidence: 0.9,
		AgentID:    "agent-1",
	}
	require.NoError(t, store.Store(ctx, mem))

	got, err := store.Get(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, "this project uses Go", got.Content)
	assert.NotEmpty(t, got.ContentHash)
}

func TestGet_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "mem:missing")

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetByContentHash_FindsExistingMemoryType(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mem := &types.Memory{ID: "mem:1", Content: "we decided to use SQLite", MemoryType: types.MemoryTypeEpisodic}
	require.NoError(t, store.Store(ctx, mem))

	found, err := store.GetByContentHash(ctx, mem.ContentHash, types.MemoryTypeEpisodic)
	require.NoError(t, err)
	assert.Equal(t, "mem:1", found.ID)

	_, err = store.GetByContentHash(ctx, mem.ContentHash, types.MemoryTypeSemantic)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdate_RequiresExistingMemory(t *testing.T) {
	store := openTestStore(t)

	err := store.Update(context.Background(), &types.Memory{ID: "mem:missing", Content: "x", MemoryType: types.MemoryTypeWorking})

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete_RemovesMemory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "x", MemoryType: types.MemoryTypeWorking}))

	require.NoError(t, store.Delete(ctx, "mem:1"))

	_, err := store.Get(ctx, "mem:1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete_NotFound(t *testing.T) {
	store := openTestStore(t)

	err := store.Delete(context.Background(), "mem:missing")

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListEligible_FiltersByTypeAndAccessCount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "a", MemoryType: types.MemoryTypeWorking}))
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:2", Content: "b", MemoryType: types.MemoryTypeSemantic}))

	out, err := store.ListEligible(ctx, storage.EligibilityFilter{
		MemoryTypes:    []types.MemoryType{types.MemoryTypeWorking},
		MaxAccessCount: -1,
		AsOf:           time.Now().UTC(),
	})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "mem:1", out[0].ID)
}

func TestListEligible_ExcludesSourceTypes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "a", MemoryType: types.MemoryTypeEpisodic, SourceType: "cli"}))
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:2", Content: "b", MemoryType: types.MemoryTypeEpisodic, SourceType: "consolidation"}))

	out, err := store.ListEligible(ctx, storage.EligibilityFilter{
		MemoryTypes:        []types.MemoryType{types.MemoryTypeEpisodic},
		MaxAccessCount:     -1,
		AsOf:               time.Now().UTC(),
		ExcludeSourceTypes: []string{"consolidation"},
	})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "mem:1", out[0].ID)
}

func TestBatchIncrementAccess_MergesCountAndLatestTimestamp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "a", MemoryType: types.MemoryTypeWorking}))

	now := time.Now().UTC()
	require.NoError(t, store.BatchIncrementAccess(ctx, []storage.AccessEvent{
		{MemoryID: "mem:1", Count: 3, Timestamp: now},
	}))

	got, err := store.Get(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.AccessCount)
	require.NotNil(t, got.AccessedAt)
}

func TestStoreMentionsAndMemoriesMentioningEntities(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:1", Content: "Stripe handles billing", MemoryType: types.MemoryTypeSemantic}))

	require.NoError(t, store.StoreMentions(ctx, "mem:1", []types.MentionEdge{{MemoryID: "mem:1", EntityID: "Stripe", Position: 0}}))

	ids, err := store.GetMentionedEntityIDs(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stripe"}, ids)

	memories, err := store.MemoriesMentioningEntities(ctx, []string{"Stripe"})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "mem:1", memories[0].ID)
}

func TestArchiveAndDeleteThenRestore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mem := &types.Memory{ID: "mem:1", Content: "stale note", MemoryType: types.MemoryTypeWorking}
	require.NoError(t, store.Store(ctx, mem))

	now := time.Now().UTC()
	require.NoError(t, store.ArchiveAndDelete(ctx, []types.ArchivedMemory{{
		Memory:        *mem,
		OriginalID:    "mem:1",
		ArchivedAt:    now,
		ExpiresAt:     types.DefaultArchiveExpiry(now),
		ArchiveReason: types.ArchiveReasonPruned,
	}}))

	_, err := store.Get(ctx, "mem:1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	archived, err := store.GetArchive(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, types.ArchiveReasonPruned, archived.ArchiveReason)

	restored, err := store.RestoreArchive(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, "stale note", restored.Content)

	_, err = store.GetArchive(ctx, "mem:1")
	assert.ErrorIs(t, err, types.ErrArchiveNotFound)
}

func TestPurgeExpiredArchives(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mem := &types.Memory{ID: "mem:1", Content: "stale note", MemoryType: types.MemoryTypeWorking}
	require.NoError(t, store.Store(ctx, mem))

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.ArchiveAndDelete(ctx, []types.ArchivedMemory{{
		Memory:        *mem,
		OriginalID:    "mem:1",
		ArchivedAt:    past.Add(-time.Hour),
		ExpiresAt:     past,
		ArchiveReason: types.ArchiveReasonPruned,
	}}))

	n, err := store.PurgeExpiredArchives(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
