// Package storage defines the composable storage interfaces the Graph
// Adapter (C1) and Memory Store (C2) implement, following the teacher's
// Interface Segregation discipline: small, focused interfaces a backend can
// satisfy independently.
package storage

import (
	"context"
	"time"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// MemoryStore is C2's contract: CRUD, listing, and the mutation paths owned
// by the access tracker, smart pruner, and consolidation engine.
type MemoryStore interface {
	// Store creates or updates a memory (upsert on ID).
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// GetByContentHash finds a live memory with the given content hash and
	// memory type, implementing the exact-duplicate boundary in §3's
	// invariant. Returns ErrNotFound if none exists.
	GetByContentHash(ctx context.Context, hash string, memoryType types.MemoryType) (*types.Memory, error)

	// List retrieves memories with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// ListEligible returns live memories matching opts without pagination,
	// for full-corpus scans (pruning, consolidation candidate selection).
	ListEligible(ctx context.Context, opts EligibilityFilter) ([]*types.Memory, error)

	// Update persists changes to an existing memory. Returns ErrNotFound if
	// the memory doesn't exist.
	Update(ctx context.Context, memory *types.Memory) error

	// DeleteExpired deletes all memories where valid_to <= asOf and returns
	// the count removed (C2's cleanup_expired_memories).
	DeleteExpired(ctx context.Context, asOf time.Time) (int, error)

	// Delete hard-deletes a memory by ID (used by prune/consolidate after
	// archiving). Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// BatchIncrementAccess applies a batch of merged access events: for each
	// entry, access_count += count and accessed_at = timestamp if later than
	// the stored value. Used by the access tracker's flush.
	BatchIncrementAccess(ctx context.Context, events []AccessEvent) error

	// StoreMentions persists MENTIONS edges for a memory in a transaction of
	// its own, separate from the Store call that created the memory.
	StoreMentions(ctx context.Context, memoryID string, mentions []types.MentionEdge) error

	// GetMentionedEntityIDs returns the entity IDs a memory mentions.
	GetMentionedEntityIDs(ctx context.Context, memoryID string) ([]string, error)

	// MemoriesMentioningEntities returns live memories that mention any of
	// the given entity IDs, for C4's entity recall strategy.
	MemoriesMentioningEntities(ctx context.Context, entityIDs []string) ([]*types.Memory, error)

	// StoreConsolidationEdge records a CONSOLIDATED_INTO edge from an
	// original memory to its summary.
	StoreConsolidationEdge(ctx context.Context, edge types.ConsolidationEdge) error

	// ArchiveAndDelete archives a batch of memories (capped at 100 per call
	// by the caller) and deletes the originals in one logical transaction.
	ArchiveAndDelete(ctx context.Context, archives []types.ArchivedMemory) error

	// GetArchive retrieves an archived memory by its archive id (a record id
	// assigned at archive time; the original memory id is OriginalID).
	// Returns ErrArchiveNotFound if absent or expired.
	GetArchive(ctx context.Context, archiveID string) (*types.ArchivedMemory, error)

	// RestoreArchive reinstates an archived memory as a live Memory and
	// removes the archive row. Returns ErrArchiveNotFound if the archive is
	// absent or its recovery window has passed.
	RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error)

	// PurgeExpiredArchives deletes archive rows whose expires_at has
	// passed and returns the count removed.
	PurgeExpiredArchives(ctx context.Context, asOf time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// SearchProvider is implemented by backends offering full-text search (the
// SQLite backend's FTS5 virtual table); C4's keyword strategy prefers this
// when available and falls back to an in-memory scan otherwise.
type SearchProvider interface {
	FullTextSearch(ctx context.Context, opts SearchOptions) (*PaginatedResult[types.Memory], error)
}

// GraphAdapter is C1's contract: schema lifecycle and pooled, parameterized
// query execution. The SQLite adapter wraps a MemoryStore (see
// internal/graph) rather than the other way round.
type GraphAdapter interface {
	// Initialize creates the schema if absent.
	Initialize(ctx context.Context) error

	// Acquire obtains a pooled connection for the duration of fn, releasing
	// it on every exit path including panic recovery by the caller's defer.
	// Returns types.ErrPoolExhausted if none becomes available before the
	// adapter's acquire timeout elapses.
	Acquire(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases the pool and closes the underlying database handle.
	Close() error
}
