// Package tracker implements the Access Tracker (C5): a non-blocking FIFO
// of access events drained by a dedicated background worker that merges and
// batches updates before flushing through the store.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
)

// queueCapacity bounds the FIFO so a wedged flush cannot grow memory
// without limit. Once full, TrackBatch drops the oldest queued event to
// make room for the new one, preserving the "never blocks recall" and
// "recent access wins" invariants together.
const queueCapacity = 10_000

// event is one raw access observation before merging.
type event struct {
	memoryID  string
	timestamp time.Time
	count     int
}

// Config governs the tracker's batching behavior.
type Config struct {
	BatchInterval time.Duration // default 5s
	BatchSize     int           // default 100
}

// Tracker owns one FIFO and one background worker; the Store creates one
// Tracker and owns its lifecycle. Track and TrackBatch are O(1) and non-blocking from the caller's
// perspective, as required by the recall hot path.
type Tracker struct {
	store  storage.MemoryStore
	cfg    Config
	logger *slog.Logger

	queue  chan event
	limit  *rate.Limiter
	done   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Tracker. Start must be called to begin the background
// worker; until then, Track/TrackBatch enqueue but nothing is flushed.
func New(store storage.MemoryStore, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan event, queueCapacity),
		// limit caps the flush rate so a pathological burst of access events
		// cannot hammer the store faster than one flush per half the batch
		// interval.
		limit: rate.NewLimiter(rate.Every(cfg.BatchInterval/2), 1),
		done:  make(chan struct{}),
	}
}

// Start launches the background worker. Safe to call once per Tracker.
func (t *Tracker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.wg.Add(1)
	go t.run(workerCtx)
}

// Stop drains the queue and flushes before returning, satisfying the
// spec's shutdown contract.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

// Track enqueues a single access event, non-blocking. If the queue is full
// the oldest queued event is discarded to make room — this is the only
// circumstance under which an access count update is lost, and it only
// occurs under sustained overload far past the 100-event batch threshold.
func (t *Tracker) Track(memoryID string) {
	t.TrackBatch([]string{memoryID})
}

// TrackBatch enqueues access events for multiple memory ids with the same
// timestamp, non-blocking. A full queue drops the oldest pending event
// rather than the new one, so recall-hot-path callers never block and the
// queue always favors the most recent access information.
func (t *Tracker) TrackBatch(memoryIDs []string) {
	now := time.Now().UTC()
	for _, id := range memoryIDs {
		e := event{memoryID: id, timestamp: now, count: 1}
		select {
		case t.queue <- e:
		default:
			select {
			case dropped := <-t.queue:
				t.logger.Warn("tracker: queue full, dropping oldest access event", "memory_id", dropped.memoryID)
			default:
			}
			select {
			case t.queue <- e:
			default:
				t.logger.Warn("tracker: queue full after eviction, dropping newest access event", "memory_id", id)
			}
		}
	}
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.BatchInterval)
	defer ticker.Stop()

	pending := make(map[string]*storage.AccessEvent)

	flush := func(force bool) {
		if len(pending) == 0 {
			return
		}
		if !force && !t.limit.Allow() {
			// Rate limited: leave pending for the next tick rather than
			// hammering the store faster than BatchInterval/2.
			return
		}
		batch := make([]storage.AccessEvent, 0, len(pending))
		for _, e := range pending {
			batch = append(batch, *e)
		}
		if err := t.store.BatchIncrementAccess(context.Background(), batch); err != nil {
			t.logger.Warn("tracker: flush failed, will retry next tick", "error", err, "batch_size", len(batch))
			return // keep pending for the next tick
		}
		pending = make(map[string]*storage.AccessEvent)
	}

	merge := func(e event) {
		if existing, ok := pending[e.memoryID]; ok {
			existing.Count += e.count
			if e.timestamp.After(existing.Timestamp) {
				existing.Timestamp = e.timestamp
			}
			return
		}
		pending[e.memoryID] = &storage.AccessEvent{MemoryID: e.memoryID, Timestamp: e.timestamp, Count: e.count}
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-t.queue:
					merge(e)
				default:
					flush(true)
					return
				}
			}
		case e := <-t.queue:
			merge(e)
			if len(pending) >= t.cfg.BatchSize {
				flush(false)
			}
		case <-ticker.C:
			flush(false)
		}
	}
}
