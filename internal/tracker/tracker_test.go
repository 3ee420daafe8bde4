package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
)

// fakeStore implements storage.MemoryStore, recording only the
// BatchIncrementAccess calls the tracker exercises.
type fakeStore struct {
	storage.MemoryStore

	mu     sync.Mutex
	events []storage.AccessEvent
	fail   bool
}

func (f *fakeStore) BatchIncrementAccess(ctx context.Context, events []storage.AccessEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) snapshot() []storage.AccessEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.AccessEvent, len(f.events))
	copy(out, f.events)
	return out
}

func TestTracker_FlushesOnBatchSize(t *testing.T) {
	store := &fakeStore{}
	trk := New(store, Config{BatchInterval: time.Hour, BatchSize: 3}, nil)
	trk.Start(context.Background())
	defer trk.Stop()

	trk.TrackBatch([]string{"mem:1", "mem:2", "mem:3"})

	require.Eventually(t, func() bool {
		return len(store.snapshot()) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestTracker_MergesDuplicateAccessesBeforeFlush(t *testing.T) {
	store := &fakeStore{}
	trk := New(store, Config{BatchInterval: 20 * time.Millisecond, BatchSize: 1000}, nil)
	trk.Start(context.Background())
	defer trk.Stop()

	for i := 0; i < 5; i++ {
		trk.Track("mem:dup")
	}

	require.Eventually(t, func() bool {
		return len(store.snapshot()) > 0
	}, time.Second, 5*time.Millisecond)

	events := store.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "mem:dup", events[0].MemoryID)
	assert.Equal(t, 5, events[0].Count)
}

func TestTracker_StopFlushesPending(t *testing.T) {
	store := &fakeStore{}
	trk := New(store, Config{BatchInterval: time.Hour, BatchSize: 1000}, nil)
	trk.Start(context.Background())

	trk.Track("mem:1")
	trk.Stop()

	assert.Len(t, store.snapshot(), 1)
}

func TestTracker_NonBlockingWhenNotStarted(t *testing.T) {
	store := &fakeStore{}
	trk := New(store, Config{}, nil)

	assert.NotPanics(t, func() {
		trk.TrackBatch([]string{"mem:1", "mem:2"})
	})
}

func TestTracker_FullQueueDropsOldestNotNewest(t *testing.T) {
	store := &fakeStore{}
	trk := New(store, Config{BatchInterval: time.Hour, BatchSize: queueCapacity + 1}, nil)

	ids := make([]string, 0, queueCapacity+1)
	for i := 0; i < queueCapacity; i++ {
		ids = append(ids, "mem:old-filler")
	}
	ids = append(ids, "mem:newest")
	trk.TrackBatch(ids)

	trk.Start(context.Background())
	trk.Stop()

	events := store.snapshot()
	require.NotEmpty(t, events)

	var sawNewest bool
	var total int
	for _, e := range events {
		total += e.Count
		if e.MemoryID == "mem:newest" {
			sawNewest = true
		}
	}
	assert.True(t, sawNewest, "newest event must survive eviction of the oldest queued event")
	assert.Less(t, total, queueCapacity+1, "one stale event must have been evicted to make room for the newest")
}
