package sqlite

// Schema is the full SQLite schema applied by openMemoryStore on first
// connect. It mirrors the table shapes of the teacher's Postgres backend
// (memories / entities / relationships) translated to SQLite types, plus
// the FTS5 virtual table and sync triggers the search provider depends on.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	memory_type   TEXT NOT NULL,
	importance    REAL NOT NULL DEFAULT 0.5,
	confidence    REAL NOT NULL DEFAULT 1.0,
	source_type   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	valid_from    TIMESTAMP NOT NULL,
	valid_to      TIMESTAMP,
	accessed_at   TIMESTAMP,
	access_count  INTEGER NOT NULL DEFAULT 0,
	agent_id      TEXT NOT NULL DEFAULT '',
	user_id       TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	origin_hint   TEXT NOT NULL DEFAULT '',
	cluster_id    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash, memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_valid_to ON memories(valid_to);
CREATE INDEX IF NOT EXISTS idx_memories_agent_user_session ON memories(agent_id, user_id, session_id);
CREATE INDEX IF NOT EXISTS idx_memories_type_created ON memories(memory_type, created_at);
CREATE INDEX IF NOT EXISTS idx_memories_access_count ON memories(access_count);
CREATE INDEX IF NOT EXISTS idx_memories_cluster_id ON memories(cluster_id) WHERE cluster_id != '';

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(name, type)
);

CREATE TABLE IF NOT EXISTS memory_mentions (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (memory_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_mentions_entity ON memory_mentions(entity_id);

CREATE TABLE IF NOT EXISTS consolidation_edges (
	from_memory_id     TEXT NOT NULL,
	to_memory_id       TEXT NOT NULL,
	consolidation_date TIMESTAMP NOT NULL,
	cluster_id         TEXT NOT NULL,
	similarity_score   REAL NOT NULL,
	PRIMARY KEY (from_memory_id, to_memory_id)
);

CREATE TABLE IF NOT EXISTS related_edges (
	from_memory_id TEXT NOT NULL,
	to_memory_id   TEXT NOT NULL,
	weight         REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (from_memory_id, to_memory_id)
);

CREATE TABLE IF NOT EXISTS archived_memories (
	id             TEXT PRIMARY KEY,
	original_id    TEXT NOT NULL,
	content        TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	memory_type    TEXT NOT NULL,
	importance     REAL NOT NULL,
	confidence     REAL NOT NULL,
	source_type    TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	valid_from     TIMESTAMP NOT NULL,
	valid_to       TIMESTAMP,
	accessed_at    TIMESTAMP,
	access_count   INTEGER NOT NULL DEFAULT 0,
	agent_id       TEXT NOT NULL DEFAULT '',
	user_id        TEXT NOT NULL DEFAULT '',
	session_id     TEXT NOT NULL DEFAULT '',
	metadata       TEXT NOT NULL DEFAULT '{}',
	origin_hint    TEXT NOT NULL DEFAULT '',
	cluster_id     TEXT NOT NULL DEFAULT '',
	archived_at    TIMESTAMP NOT NULL,
	expires_at     TIMESTAMP NOT NULL,
	prune_score    REAL NOT NULL DEFAULT 0,
	prune_reason   TEXT NOT NULL DEFAULT '',
	archive_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_archived_expires_at ON archived_memories(expires_at);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- memories_fts mirrors memories.content for FTS5 MATCH queries; kept in
-- sync by the triggers below rather than queried directly for writes.
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED,
	content,
	content='memories',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_ai AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_ad AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, id, content) VALUES('delete', old.rowid, old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_au AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, id, content) VALUES('delete', old.rowid, old.id, old.content);
	INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
END;
`
