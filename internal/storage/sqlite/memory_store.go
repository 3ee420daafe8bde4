package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// RunMigrations applies all pending database migrations from the given
// directory, for callers that prefer versioned migrations over the embedded
// Schema constant (e.g. upgrading an existing deployment in place).
func (s *MemoryStore) RunMigrations(migrationsDir string) error {
	mgr, err := storage.NewMigrationManager(s.db, migrationsDir)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create migration manager: %w", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		return fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}
	return nil
}

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db *sql.DB
}

// DB returns the underlying database handle, for callers that need direct
// access (config's DB-persisted overrides, the settings table).
func (s *MemoryStore) DB() *sql.DB {
	return s.db
}

// NewMemoryStore creates a new SQLite memory store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a
// crashed process), it verifies no other process holds them and retries
// once after removing the stale -shm/-wal files.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	store, err := openMemoryStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openMemoryStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// openMemoryStore opens a SQLite database, configures WAL mode, and creates
// the schema.
func openMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serializes writes and avoids SQLITE_BUSY errors under concurrent
	// load; WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db}, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

// Store creates or updates a memory (upsert semantics on ID).
func (s *MemoryStore) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if !memory.MemoryType.IsValid() {
		return fmt.Errorf("%w: invalid memory_type %q", storage.ErrInvalidInput, memory.MemoryType)
	}

	memory.ContentHash = fmt.Sprintf("%x", sha256.Sum256([]byte(memory.Content)))

	metadataJSON, err := marshalMetadata(memory.Metadata)
	if err != nil {
		return err
	}

	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}
	if memory.ValidFrom.IsZero() {
		memory.ValidFrom = memory.CreatedAt
	}

	query := `
		INSERT INTO memories (
			id, content, content_hash, memory_type, importance, confidence,
			source_type, created_at, valid_from, valid_to, accessed_at,
			access_count, agent_id, user_id, session_id, metadata,
			origin_hint, cluster_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			memory_type = excluded.memory_type,
			importance = excluded.importance,
			confidence = excluded.confidence,
			source_type = excluded.source_type,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			accessed_at = excluded.accessed_at,
			access_count = excluded.access_count,
			agent_id = excluded.agent_id,
			user_id = excluded.user_id,
			session_id = excluded.session_id,
			metadata = excluded.metadata,
			origin_hint = excluded.origin_hint,
			cluster_id = excluded.cluster_id
	`

	_, err = s.db.ExecContext(ctx, query,
		memory.ID, memory.Content, memory.ContentHash, string(memory.MemoryType),
		memory.Importance, memory.Confidence, memory.SourceType,
		memory.CreatedAt, memory.ValidFrom, nullableTime(memory.ValidTo), nullableTime(memory.AccessedAt),
		memory.AccessCount, memory.AgentID, memory.UserID, memory.SessionID, metadataJSON,
		memory.OriginHint, memory.ClusterID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: Store: %w", err)
	}
	return nil
}

const memoryColumns = `
	id, content, content_hash, memory_type, importance, confidence,
	source_type, created_at, valid_from, valid_to, accessed_at,
	access_count, agent_id, user_id, session_id, metadata,
	origin_hint, cluster_id
`

func scanMemory(row interface{ Scan(...any) error }) (*types.Memory, error) {
	var (
		m            types.Memory
		memTypeRaw   string
		validTo      sql.NullTime
		accessedAt   sql.NullTime
		metadataJSON string
	)
	err := row.Scan(
		&m.ID, &m.Content, &m.ContentHash, &memTypeRaw, &m.Importance, &m.Confidence,
		&m.SourceType, &m.CreatedAt, &m.ValidFrom, &validTo, &accessedAt,
		&m.AccessCount, &m.AgentID, &m.UserID, &m.SessionID, &metadataJSON,
		&m.OriginHint, &m.ClusterID,
	)
	if err != nil {
		return nil, err
	}
	m.MemoryType = types.MemoryType(memTypeRaw)
	if validTo.Valid {
		t := validTo.Time
		m.ValidTo = &t
	}
	if accessedAt.Valid {
		t := accessedAt.Time
		m.AccessedAt = &t
	}
	m.Metadata, err = unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get retrieves a memory by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories WHERE id = ?", id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: Get: %w", err)
	}
	return m, nil
}

// GetByContentHash finds a live memory with the given content hash and type.
func (s *MemoryStore) GetByContentHash(ctx context.Context, hash string, memoryType types.MemoryType) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE content_hash = ? AND memory_type = ? AND (valid_to IS NULL OR valid_to > ?)
		 LIMIT 1`,
		hash, string(memoryType), time.Now().UTC(),
	)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetByContentHash: %w", err)
	}
	return m, nil
}

// List retrieves memories with pagination and filtering.
func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	var (
		where []string
		args  []any
	)
	if opts.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, opts.AgentID)
	}
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if opts.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, string(opts.MemoryType))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM memories " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: List count: %w", err)
	}

	// opts.SortBy is whitelisted by Normalize against allowedSortFields, so
	// it is safe to interpolate directly.
	query := fmt.Sprintf(
		"SELECT %s FROM memories %s ORDER BY %s %s LIMIT ? OFFSET ?",
		memoryColumns, whereClause, opts.SortBy, strings.ToUpper(opts.SortOrder),
	)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: List: %w", err)
	}
	defer rows.Close()

	items := make([]types.Memory, 0, opts.Limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: List scan: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: List rows: %w", err)
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// ListEligible returns live memories matching opts without pagination, for
// full-corpus maintenance scans (smart pruner, consolidation candidates).
func (s *MemoryStore) ListEligible(ctx context.Context, opts storage.EligibilityFilter) ([]*types.Memory, error) {
	where := []string{"(valid_to IS NULL OR valid_to > ?)"}
	args := []any{opts.AsOf}

	if len(opts.MemoryTypes) > 0 {
		placeholders := make([]string, len(opts.MemoryTypes))
		for i, t := range opts.MemoryTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "memory_type IN ("+strings.Join(placeholders, ",")+")")
	}
	if opts.MaxAccessCount >= 0 {
		where = append(where, "access_count <= ?")
		args = append(args, opts.MaxAccessCount)
	}
	if opts.MinAgeDays > 0 {
		cutoff := opts.AsOf.Add(-time.Duration(opts.MinAgeDays*24) * time.Hour)
		where = append(where, "created_at <= ?")
		args = append(args, cutoff)
	}
	if len(opts.ExcludeSourceTypes) > 0 {
		placeholders := make([]string, len(opts.ExcludeSourceTypes))
		for i, st := range opts.ExcludeSourceTypes {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = append(where, "source_type NOT IN ("+strings.Join(placeholders, ",")+")")
	}

	query := "SELECT " + memoryColumns + " FROM memories WHERE " + strings.Join(where, " AND ")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListEligible: %w", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: ListEligible scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update persists changes to an existing memory.
func (s *MemoryStore) Update(ctx context.Context, memory *types.Memory) error {
	ok, err := s.exists(ctx, memory.ID)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	return s.Store(ctx, memory)
}

// DeleteExpired deletes all memories where valid_to <= asOf.
func (s *MemoryStore) DeleteExpired(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE valid_to IS NOT NULL AND valid_to <= ?", asOf)
	if err != nil {
		return 0, fmt.Errorf("sqlite: DeleteExpired: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Delete hard-deletes a memory by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// BatchIncrementAccess applies a batch of merged access events in a single
// transaction: access_count += count, accessed_at bumped if later.
func (s *MemoryStore) BatchIncrementAccess(ctx context.Context, events []storage.AccessEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: BatchIncrementAccess begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE memories SET
			access_count = access_count + ?,
			accessed_at = CASE WHEN accessed_at IS NULL OR accessed_at < ? THEN ? ELSE accessed_at END
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("sqlite: BatchIncrementAccess prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.Count, e.Timestamp, e.Timestamp, e.MemoryID); err != nil {
			return fmt.Errorf("sqlite: BatchIncrementAccess exec for %s: %w", e.MemoryID, err)
		}
	}
	return tx.Commit()
}

// StoreMentions persists MENTIONS edges for a memory, replacing any
// previously stored set (memory extraction is re-run, not appended to).
func (s *MemoryStore) StoreMentions(ctx context.Context, memoryID string, mentions []types.MentionEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: StoreMentions begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_mentions WHERE memory_id = ?", memoryID); err != nil {
		return fmt.Errorf("sqlite: StoreMentions clear: %w", err)
	}

	for _, m := range mentions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities (id, name, type, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(name, type) DO NOTHING`,
			m.EntityID, m.EntityID, "", time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("sqlite: StoreMentions entity: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_mentions (memory_id, entity_id, position) VALUES (?, ?, ?)
			 ON CONFLICT(memory_id, entity_id) DO UPDATE SET position = excluded.position`,
			memoryID, m.EntityID, m.Position,
		); err != nil {
			return fmt.Errorf("sqlite: StoreMentions mention: %w", err)
		}
	}
	return tx.Commit()
}

// GetMentionedEntityIDs returns the entity IDs a memory mentions.
func (s *MemoryStore) GetMentionedEntityIDs(ctx context.Context, memoryID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT entity_id FROM memory_mentions WHERE memory_id = ?", memoryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetMentionedEntityIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemoriesMentioningEntities returns live memories mentioning any of the
// given entity IDs, for the entity recall strategy.
func (s *MemoryStore) MemoriesMentioningEntities(ctx context.Context, entityIDs []string) ([]*types.Memory, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(entityIDs))
	args := make([]any, 0, len(entityIDs)+1)
	for i, id := range entityIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, time.Now().UTC())

	query := fmt.Sprintf(`
		SELECT DISTINCT %s FROM memories m
		JOIN memory_mentions mm ON mm.memory_id = m.id
		WHERE mm.entity_id IN (%s) AND (m.valid_to IS NULL OR m.valid_to > ?)
	`, prefixColumns("m", memoryColumns), strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: MemoriesMentioningEntities: %w", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// StoreConsolidationEdge records a CONSOLIDATED_INTO edge.
func (s *MemoryStore) StoreConsolidationEdge(ctx context.Context, edge types.ConsolidationEdge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consolidation_edges (from_memory_id, to_memory_id, consolidation_date, cluster_id, similarity_score)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_memory_id, to_memory_id) DO UPDATE SET
			consolidation_date = excluded.consolidation_date,
			cluster_id = excluded.cluster_id,
			similarity_score = excluded.similarity_score
	`, edge.FromMemoryID, edge.ToMemoryID, edge.ConsolidationDate, edge.ClusterID, edge.SimilarityScore)
	if err != nil {
		return fmt.Errorf("sqlite: StoreConsolidationEdge: %w", err)
	}
	return nil
}

// ArchiveAndDelete archives a batch of memories and deletes the originals in
// one transaction; callers cap batches at 100 rows per the pruner's
// invariant.
func (s *MemoryStore) ArchiveAndDelete(ctx context.Context, archives []types.ArchivedMemory) error {
	if len(archives) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: ArchiveAndDelete begin: %w", err)
	}
	defer tx.Rollback()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archived_memories (
			id, original_id, content, content_hash, memory_type, importance, confidence,
			source_type, created_at, valid_from, valid_to, accessed_at, access_count,
			agent_id, user_id, session_id, metadata, origin_hint, cluster_id,
			archived_at, expires_at, prune_score, prune_reason, archive_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			archived_at = excluded.archived_at,
			expires_at = excluded.expires_at,
			prune_score = excluded.prune_score,
			prune_reason = excluded.prune_reason,
			archive_reason = excluded.archive_reason
	`)
	if err != nil {
		return fmt.Errorf("sqlite: ArchiveAndDelete prepare insert: %w", err)
	}
	defer insertStmt.Close()

	deleteStmt, err := tx.PrepareContext(ctx, "DELETE FROM memories WHERE id = ?")
	if err != nil {
		return fmt.Errorf("sqlite: ArchiveAndDelete prepare delete: %w", err)
	}
	defer deleteStmt.Close()

	for _, a := range archives {
		metadataJSON, err := marshalMetadata(a.Metadata)
		if err != nil {
			return err
		}
		if _, err := insertStmt.ExecContext(ctx,
			a.ID, a.OriginalID, a.Content, a.ContentHash, string(a.MemoryType), a.Importance, a.Confidence,
			a.SourceType, a.CreatedAt, a.ValidFrom, nullableTime(a.ValidTo), nullableTime(a.AccessedAt), a.AccessCount,
			a.AgentID, a.UserID, a.SessionID, metadataJSON, a.OriginHint, a.ClusterID,
			a.ArchivedAt, a.ExpiresAt, a.PruneScore, a.PruneReason, string(a.ArchiveReason),
		); err != nil {
			return fmt.Errorf("sqlite: ArchiveAndDelete insert %s: %w", a.ID, err)
		}
		if _, err := deleteStmt.ExecContext(ctx, a.OriginalID); err != nil {
			return fmt.Errorf("sqlite: ArchiveAndDelete delete %s: %w", a.OriginalID, err)
		}
	}
	return tx.Commit()
}

const archiveColumns = `
	id, original_id, content, content_hash, memory_type, importance, confidence,
	source_type, created_at, valid_from, valid_to, accessed_at, access_count,
	agent_id, user_id, session_id, metadata, origin_hint, cluster_id,
	archived_at, expires_at, prune_score, prune_reason, archive_reason
`

func scanArchive(row interface{ Scan(...any) error }) (*types.ArchivedMemory, error) {
	var (
		a            types.ArchivedMemory
		memTypeRaw   string
		validTo      sql.NullTime
		accessedAt   sql.NullTime
		metadataJSON string
		archiveRsn   string
	)
	err := row.Scan(
		&a.ID, &a.OriginalID, &a.Content, &a.ContentHash, &memTypeRaw, &a.Importance, &a.Confidence,
		&a.SourceType, &a.CreatedAt, &a.ValidFrom, &validTo, &accessedAt, &a.AccessCount,
		&a.AgentID, &a.UserID, &a.SessionID, &metadataJSON, &a.OriginHint, &a.ClusterID,
		&a.ArchivedAt, &a.ExpiresAt, &a.PruneScore, &a.PruneReason, &archiveRsn,
	)
	if err != nil {
		return nil, err
	}
	a.MemoryType = types.MemoryType(memTypeRaw)
	a.ArchiveReason = types.ArchiveReason(archiveRsn)
	if validTo.Valid {
		t := validTo.Time
		a.ValidTo = &t
	}
	if accessedAt.Valid {
		t := accessedAt.Time
		a.AccessedAt = &t
	}
	a.Metadata, err = unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetArchive retrieves an archived memory by its archive id.
func (s *MemoryStore) GetArchive(ctx context.Context, archiveID string) (*types.ArchivedMemory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+archiveColumns+" FROM archived_memories WHERE id = ?", archiveID)
	a, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetArchive: %w", err)
	}
	if a.IsExpired(time.Now().UTC()) {
		return nil, types.ErrArchiveNotFound
	}
	return a, nil
}

// RestoreArchive reinstates an archived memory as a live Memory and removes
// the archive row, rejecting archives whose recovery window has passed.
func (s *MemoryStore) RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: RestoreArchive begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+archiveColumns+" FROM archived_memories WHERE id = ?", archiveID)
	a, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: RestoreArchive select: %w", err)
	}
	if a.IsExpired(time.Now().UTC()) {
		return nil, types.ErrArchiveNotFound
	}

	restored := a.Memory
	restored.ID = a.OriginalID
	metadataJSON, err := marshalMetadata(restored.Metadata)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, content_hash, memory_type, importance, confidence,
			source_type, created_at, valid_from, valid_to, accessed_at,
			access_count, agent_id, user_id, session_id, metadata,
			origin_hint, cluster_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		restored.ID, restored.Content, restored.ContentHash, string(restored.MemoryType),
		restored.Importance, restored.Confidence, restored.SourceType,
		restored.CreatedAt, restored.ValidFrom, nullableTime(restored.ValidTo), nullableTime(restored.AccessedAt),
		restored.AccessCount, restored.AgentID, restored.UserID, restored.SessionID, metadataJSON,
		restored.OriginHint, restored.ClusterID,
	); err != nil {
		return nil, fmt.Errorf("sqlite: RestoreArchive insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM archived_memories WHERE id = ?", archiveID); err != nil {
		return nil, fmt.Errorf("sqlite: RestoreArchive cleanup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: RestoreArchive commit: %w", err)
	}
	return &restored, nil
}

// PurgeExpiredArchives deletes archive rows whose recovery window has passed.
func (s *MemoryStore) PurgeExpiredArchives(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM archived_memories WHERE expires_at <= ?", asOf)
	if err != nil {
		return 0, fmt.Errorf("sqlite: PurgeExpiredArchives: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close checkpoints the WAL and closes the underlying connection.
func (s *MemoryStore) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: wal checkpoint on close failed: %v", err)
	}
	return s.db.Close()
}

func (s *MemoryStore) exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}

// nullableTime converts a time pointer to sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN. Handles bare
// paths ("/path/to/db.sqlite") and file: URIs ("file:/path/to/db.sqlite?mode=rwc").
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database
// path AND no other process currently holds them open (via lsof). Returns
// false if lsof is unavailable (conservative: no deletion).
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
