// Package graph implements the Graph Adapter (C1): schema lifecycle, a
// bounded connection pool with FIFO handout, and a circuit breaker guarding
// the query path against cascading failures from a wedged database.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/internal/storage/sqlite"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// PoolConfig configures the adapter's bounded pool and breaker.
type PoolConfig struct {
	// MaxConcurrent is the number of callers allowed to hold the pool's
	// single logical slot set simultaneously. SQLite in WAL mode serializes
	// writes through one connection regardless, so this bounds the number
	// of in-flight Acquire callers rather than real driver connections.
	MaxConcurrent int // default 4

	// AcquireTimeout is how long Acquire waits for a free slot before
	// returning types.ErrPoolExhausted.
	AcquireTimeout time.Duration // default 2s

	// BreakerMaxFailures is the number of consecutive failures required to
	// trip the circuit.
	BreakerMaxFailures uint32 // default 5

	// BreakerTimeout is how long the circuit stays open before probing
	// again in half-open state.
	BreakerTimeout time.Duration // default 10s
}

// DefaultPoolConfig returns the adapter's defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrent:      4,
		AcquireTimeout:     2 * time.Second,
		BreakerMaxFailures: 5,
		BreakerTimeout:     10 * time.Second,
	}
}

// Adapter implements storage.GraphAdapter over the SQLite memory store,
// adding pooled acquisition and breaker-guarded execution around it.
type Adapter struct {
	store   *sqlite.MemoryStore
	sem     chan struct{}
	breaker *gobreaker.CircuitBreaker
	cfg     PoolConfig

	mu     sync.Mutex
	closed bool
}

var _ storage.GraphAdapter = (*Adapter)(nil)

// Open creates a SQLite-backed graph adapter for dsn.
func Open(dsn string, cfg PoolConfig) (*Adapter, error) {
	store, err := sqlite.NewMemoryStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("graph: open: %w", err)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultPoolConfig().MaxConcurrent
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultPoolConfig().AcquireTimeout
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = DefaultPoolConfig().BreakerMaxFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultPoolConfig().BreakerTimeout
	}

	settings := gobreaker.Settings{
		Name:        "GraphAdapter",
		MaxRequests: 2,
		Interval:    0,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	}

	return &Adapter{
		store:   store,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
	}, nil
}

// Initialize is a no-op: the schema is created by sqlite.NewMemoryStore on
// open. It exists to satisfy storage.GraphAdapter for callers that expect
// an explicit lifecycle step.
func (a *Adapter) Initialize(ctx context.Context) error {
	return nil
}

// Acquire obtains a pooled slot and runs fn through the circuit breaker,
// releasing the slot on every exit path. Waiting callers are served FIFO by
// Go's channel semantics. Returns types.ErrPoolExhausted if no slot frees up
// within AcquireTimeout, and a KindDatabaseLocked error if the breaker has
// tripped.
func (a *Adapter) Acquire(ctx context.Context, fn func(ctx context.Context) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, a.cfg.AcquireTimeout)
	defer cancel()

	select {
	case a.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return types.ErrPoolExhausted
	}
	defer func() { <-a.sem }()

	_, err := a.breaker.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewDatabaseError(types.KindDatabaseLocked, err)
	}
	return err
}

// Store returns the underlying SQLite memory store, for components that
// need the full storage.MemoryStore surface rather than raw Acquire access.
func (a *Adapter) Store() *sqlite.MemoryStore {
	return a.store
}

// Close releases the pool and closes the underlying database handle.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.store.Close()
}
