package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

type fakeStore struct {
	storage.MemoryStore

	eligible []*types.Memory
	stored   []*types.Memory
	edges    []types.ConsolidationEdge
	archived []types.ArchivedMemory
}

func (f *fakeStore) ListEligible(ctx context.Context, opts storage.EligibilityFilter) ([]*types.Memory, error) {
	return f.eligible, nil
}

func (f *fakeStore) Store(ctx context.Context, m *types.Memory) error {
	f.stored = append(f.stored, m)
	return nil
}

func (f *fakeStore) StoreConsolidationEdge(ctx context.Context, edge types.ConsolidationEdge) error {
	f.edges = append(f.edges, edge)
	return nil
}

func (f *fakeStore) ArchiveAndDelete(ctx context.Context, archives []types.ArchivedMemory) error {
	f.archived = append(f.archived, archives...)
	return nil
}

func eligibleMemory(id, content string, accessCount int) *types.Memory {
	return eligibleMemoryTyped(id, content, accessCount, types.MemoryTypeEpisodic)
}

func eligibleMemoryTyped(id, content string, accessCount int, memoryType types.MemoryType) *types.Memory {
	old := time.Now().UTC().AddDate(0, 0, -120)
	return &types.Memory{
		ID:          id,
		Content:     content,
		MemoryType:  memoryType,
		CreatedAt:   old,
		ValidFrom:   old,
		AccessCount: accessCount,
	}
}

func TestRun_ClustersSimilarMemories(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{
		eligibleMemory("mem:1", "deployed the staging server yesterday", 5),
		eligibleMemory("mem:2", "deployed the staging server yesterday afternoon", 2),
		eligibleMemory("mem:3", "completely unrelated note about lunch", 1),
	}}
	e := New(store)

	result, err := e.Run(context.Background(), Options{})

	require.NoError(t, err)
	require.Len(t, result.Clusters, 1)
	assert.Equal(t, "mem:1", result.Clusters[0].Centroid.ID)
	require.Len(t, result.Clusters[0].Members, 1)
	assert.Equal(t, "mem:2", result.Clusters[0].Members[0].ID)
}

func TestRun_NoClusterWhenNothingSimilar(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{
		eligibleMemory("mem:1", "alpha beta gamma", 1),
		eligibleMemory("mem:2", "totally different words here", 1),
	}}
	e := New(store)

	result, err := e.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Empty(t, result.Clusters)
}

func TestRun_MaterializesSummaryAndArchivesOriginals(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{
		eligibleMemory("mem:1", "deployed the staging server yesterday", 5),
		eligibleMemory("mem:2", "deployed the staging server yesterday afternoon", 2),
	}}
	e := New(store)

	result, err := e.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.SummariesCreated)
	assert.Equal(t, 2, result.OriginalsArchived)
	require.Len(t, store.stored, 1)
	assert.Equal(t, "consolidation", store.stored[0].SourceType)
	require.Len(t, store.edges, 2)
	require.Len(t, store.archived, 2)
	for _, a := range store.archived {
		assert.Equal(t, types.ArchiveReasonConsolidated, a.ArchiveReason)
	}
}

func TestRun_DryRunSkipsMaterialization(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{
		eligibleMemory("mem:1", "deployed the staging server yesterday", 5),
		eligibleMemory("mem:2", "deployed the staging server yesterday afternoon", 2),
	}}
	e := New(store)

	result, err := e.Run(context.Background(), Options{DryRun: true})

	require.NoError(t, err)
	require.Len(t, result.Clusters, 1)
	assert.Empty(t, store.stored)
	assert.Empty(t, store.archived)
}

func TestRun_SummaryTypeFollowsMajorityAcrossMixedMembers(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{
		eligibleMemoryTyped("mem:1", "deployed the staging server yesterday", 5, types.MemoryTypeWorking),
		eligibleMemoryTyped("mem:2", "deployed the staging server yesterday afternoon", 2, types.MemoryTypeWorking),
		eligibleMemoryTyped("mem:3", "deployed the staging server yesterday morning", 1, types.MemoryTypeSensory),
	}}
	e := New(store)

	_, err := e.Run(context.Background(), Options{})

	require.NoError(t, err)
	require.Len(t, store.stored, 1)
	assert.Equal(t, types.MemoryTypeWorking, store.stored[0].MemoryType)
}

func TestDominantMemoryType_MajorityWins(t *testing.T) {
	cl := Cluster{
		Centroid: &types.Memory{MemoryType: types.MemoryTypeWorking},
		Members: []*types.Memory{
			{MemoryType: types.MemoryTypeWorking},
			{MemoryType: types.MemoryTypeSensory},
		},
	}

	assert.Equal(t, types.MemoryTypeWorking, dominantMemoryType(cl))
}

func TestDominantMemoryType_TiesBreakTowardEpisodic(t *testing.T) {
	cl := Cluster{
		Centroid: &types.Memory{MemoryType: types.MemoryTypeWorking},
		Members: []*types.Memory{
			{MemoryType: types.MemoryTypeEpisodic},
		},
	}

	assert.Equal(t, types.MemoryTypeEpisodic, dominantMemoryType(cl))
}

func TestSynthesizeSummary_AppendsNovelMembers(t *testing.T) {
	centroid := &types.Memory{Content: "the build uses go and make"}
	member := &types.Memory{Content: "the release pipeline also ships docker images"}

	summary := synthesizeSummary(centroid, []*types.Memory{member})

	assert.Contains(t, summary, "Related:")
}
