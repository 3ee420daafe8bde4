package kuzumemory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/internal/graph"
	"github.com/kuzu-memory/kuzu-memory-go/internal/prune"
	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStoreAndRecall_Identity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Remember(ctx, "My name is Sarah Chen; I use Python and PostgreSQL.", "cli", "agent-1", "", "", nil)
	require.NoError(t, err)

	result, err := s.AttachMemories(ctx, "What do I use?", 10, types.RecallStrategyAuto, "agent-1", "", "")
	require.NoError(t, err)

	require.NotEmpty(t, result.Memories)
	joined := ""
	for _, m := range result.Memories {
		joined += m.Content + " "
	}
	assert.Contains(t, joined, "Python")
	assert.Contains(t, joined, "PostgreSQL")
}

func TestRemember_DeduplicatesIdenticalContentAcrossRepeatedWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Remember(ctx, "we use trunk-based development", "cli", "agent-1", "", "", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])

	got, err := s.GetMemoryByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0, got.AccessCount, "writes alone must not bump access_count")
}

func TestGenerateMemories_DedupPolicyFanOut(t *testing.T) {
	ctx := context.Background()
	base := "this project uses Go for the backend and database"
	near := "this project uses Go for the backend and database now"

	t.Run("skip returns the existing id and writes nothing new", func(t *testing.T) {
		s := openTestStore(t)
		firstIDs, err := s.GenerateMemories(ctx, base, "cli", "agent-1", "", "", nil, types.DedupPolicySkip)
		require.NoError(t, err)
		require.Len(t, firstIDs, 1)

		secondIDs, err := s.GenerateMemories(ctx, near, "cli", "agent-1", "", "", nil, types.DedupPolicySkip)
		require.NoError(t, err)
		require.Len(t, secondIDs, 1)
		assert.Equal(t, firstIDs[0], secondIDs[0])

		page, err := s.GetRecentMemories(ctx, 10, storage.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
	})

	t.Run("update refreshes metadata on the existing row", func(t *testing.T) {
		s := openTestStore(t)
		firstIDs, err := s.GenerateMemories(ctx, base, "cli", "agent-1", "", "", nil, types.DedupPolicyUpdate)
		require.NoError(t, err)
		require.Len(t, firstIDs, 1)

		secondIDs, err := s.GenerateMemories(ctx, near, "cli", "agent-1", "", "", map[string]any{"touched": true}, types.DedupPolicyUpdate)
		require.NoError(t, err)
		require.Len(t, secondIDs, 1)
		assert.Equal(t, firstIDs[0], secondIDs[0])

		got, err := s.GetMemoryByID(ctx, firstIDs[0])
		require.NoError(t, err)
		assert.Equal(t, true, got.Metadata["touched"])

		page, err := s.GetRecentMemories(ctx, 10, storage.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
	})

	t.Run("merge keeps both and links them", func(t *testing.T) {
		s := openTestStore(t)
		firstIDs, err := s.GenerateMemories(ctx, base, "cli", "agent-1", "", "", nil, types.DedupPolicyMerge)
		require.NoError(t, err)
		require.Len(t, firstIDs, 1)

		secondIDs, err := s.GenerateMemories(ctx, near, "cli", "agent-1", "", "", nil, types.DedupPolicyMerge)
		require.NoError(t, err)
		require.Len(t, secondIDs, 1)
		assert.NotEqual(t, firstIDs[0], secondIDs[0])

		page, err := s.GetRecentMemories(ctx, 10, storage.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
	})
}

func TestAttachMemories_StrictModePerformanceExceeded(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Performance.StrictMonitoring = true
	cfg.Performance.MaxRecallTimeMS = 0.00001

	s := openTestStore(t, WithConfig(cfg))
	ctx := context.Background()

	_, err := s.Remember(ctx, "the release pipeline runs nightly", "cli", "agent-1", "", "", nil)
	require.NoError(t, err)

	_, err = s.AttachMemories(ctx, "the release pipeline runs nightly", 10, types.RecallStrategyKeyword, "agent-1", "", "")

	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.KindPerformanceExceeded, typedErr.Kind)
	assert.Equal(t, "recall", typedErr.Op)
}

func TestAcquire_PoolExhaustionSurfacesThroughStore(t *testing.T) {
	s := openTestStore(t, WithPoolConfig(graph.PoolConfig{
		MaxConcurrent:      1,
		AcquireTimeout:      30 * time.Millisecond,
		BreakerMaxFailures: 5,
		BreakerTimeout:     time.Second,
	}))
	ctx := context.Background()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.graph.Acquire(ctx, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the goroutine above take the only slot

	_, err := s.Remember(ctx, "this will not fit in the pool", "cli", "agent-1", "", "", nil)

	close(release)
	wg.Wait()

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPoolExhausted)
}

func TestSmartPrune_DryRunReportsCandidatesWithoutMutating(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Remember(ctx, "a note nobody will ever look at again", "cli", "agent-1", "", "", nil)
	require.NoError(t, err)

	result, err := s.SmartPrune(ctx, prune.Options{DryRun: true})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Candidates, 0)

	page, err := s.GetRecentMemories(ctx, 10, storage.ListOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, page.Items, "dry run must not delete anything")
}

func TestOpen_WithMigrationsDirAppliesVersionedMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kuzumemory.db")

	s, err := Open(context.Background(), dbPath, WithMigrationsDir("migrations"))
	require.NoError(t, err)
	defer s.Close(context.Background())

	rows, err := s.graph.Store().DB().Query(
		"SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_memories_source_type'")
	require.NoError(t, err)
	defer rows.Close()

	assert.True(t, rows.Next(), "001_add_source_type_index migration must have created the index")
}

func TestBackupHealth_ErrorsWhenScheduledBackupsNotEnabled(t *testing.T) {
	s := openTestStore(t)

	_, err := s.BackupHealth()

	assert.Error(t, err)
}

func TestBackupHealth_ReportsHealthyAfterStartWithNoBackupYet(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "kuzumemory.db")
	backupDir := filepath.Join(dir, "backups")

	cfg := types.DefaultConfig()
	cfg.Retention.ScheduledBackupEnabled = true
	cfg.Retention.ScheduledBackupInterval = time.Hour

	s := openTestStore(t, WithConfig(cfg), WithMaintenancePaths(dbPath, backupDir))

	status, err := s.BackupHealth()

	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.LastBackup.IsZero())
}
