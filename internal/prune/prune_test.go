package prune

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

	eligible  []*types.Memory
	archived  []types.ArchivedMemory
	deletedID []string
}

func (f *fakeStore) ListEligible(ctx context.Context, opts storage.EligibilityFilter) ([]*types.Memory, error) {
	return f.eligible, nil
}

func (f *fakeStore) ArchiveAndDelete(ctx context.Context, archives []types.ArchivedMemory) error {
	f.archived = append(f.archived, archives...)
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.deletedID = append(f.deletedID, id)
	return nil
}

func oldLowValueMemory(id string) *types.Memory {
	old := time.Now().UTC().AddDate(0, 0, -400)
	return &types.Memory{
		ID:          id,
		Content:     "stale scratch note",
		MemoryType:  types.MemoryTypeWorking,
		Importance:  0.2,
		CreatedAt:   old,
		ValidFrom:   old,
		AccessCount: 0,
	}
}

func TestRun_PrunesLowScoringMemories(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{oldLowValueMemory("mem:1")}}
	p := New(store)

	result, err := p.Run(context.Background(), Options{Strategy: types.PruneStrategyAggressive, ArchiveEnabled: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, 1, result.Archived)
	require.Len(t, store.archived, 1)
	assert.Equal(t, types.ArchiveReasonPruned, store.archived[0].ArchiveReason)
}

func TestRun_ProtectsHighImportanceMemories(t *testing.T) {
	m := oldLowValueMemory("mem:1")
	m.Importance = 0.9
	store := &fakeStore{eligible: []*types.Memory{m}}
	p := New(store)

	result, err := p.Run(context.Background(), Options{Strategy: types.PruneStrategyAggressive, ArchiveEnabled: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Protected)
	assert.Equal(t, 0, result.Pruned)
}

func TestRun_ProtectsRecentMemories(t *testing.T) {
	m := oldLowValueMemory("mem:1")
	m.CreatedAt = time.Now().UTC()
	m.ValidFrom = m.CreatedAt
	store := &fakeStore{eligible: []*types.Memory{m}}
	p := New(store)

	result, err := p.Run(context.Background(), Options{Strategy: types.PruneStrategyAggressive, ArchiveEnabled: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Protected)
}

func TestRun_ProtectsPreferenceMemories(t *testing.T) {
	m := oldLowValueMemory("mem:1")
	m.MemoryType = types.MemoryTypePreference
	store := &fakeStore{eligible: []*types.Memory{m}}
	p := New(store)

	result, err := p.Run(context.Background(), Options{Strategy: types.PruneStrategyAggressive, ArchiveEnabled: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Protected)
}

func TestRun_DryRunDoesNotMutate(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{oldLowValueMemory("mem:1")}}
	p := New(store)

	result, err := p.Run(context.Background(), Options{Strategy: types.PruneStrategyAggressive, ArchiveEnabled: true, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)
	assert.Empty(t, store.archived)
}

func TestRun_DeleteWithoutArchive(t *testing.T) {
	store := &fakeStore{eligible: []*types.Memory{oldLowValueMemory("mem:1")}}
	p := New(store)

	result, err := p.Run(context.Background(), Options{Strategy: types.PruneStrategyAggressive, ArchiveEnabled: false})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, []string{"mem:1"}, store.deletedID)
}

func TestStrategyThresholds_AggressiveIsLoosestCutoff(t *testing.T) {
	assert.Greater(t, strategyThresholds[types.PruneStrategyAggressive], strategyThresholds[types.PruneStrategySafe])
}
