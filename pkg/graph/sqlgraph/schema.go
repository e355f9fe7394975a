package sqlgraph

// Timestamps are stored as unix nanoseconds so both dialects compare them
// the same way.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS graph_memories (
		owner_id   TEXT NOT NULL,
		id         TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (owner_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS graph_memories_created ON graph_memories (owner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS graph_entities (
		owner_id      TEXT NOT NULL,
		id            TEXT NOT NULL,
		name          TEXT NOT NULL,
		norm_name     TEXT NOT NULL,
		type          TEXT NOT NULL,
		first_seen_at BIGINT NOT NULL,
		mention_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (owner_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS graph_entities_name ON graph_entities (owner_id, norm_name)`,
	`CREATE TABLE IF NOT EXISTS graph_edges (
		owner_id     TEXT NOT NULL,
		type         TEXT NOT NULL,
		from_id      TEXT NOT NULL,
		to_id        TEXT NOT NULL,
		weight       DOUBLE PRECISION NOT NULL,
		last_seen_at BIGINT NOT NULL,
		PRIMARY KEY (owner_id, type, from_id, to_id)
	)`,
	`CREATE INDEX IF NOT EXISTS graph_edges_to ON graph_edges (owner_id, to_id)`,
	`CREATE TABLE IF NOT EXISTS graph_batches (
		token      TEXT PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`,
}

const (
	insertBatch = `INSERT INTO graph_batches (token, applied_at) VALUES (?, ?) ON CONFLICT (token) DO NOTHING`

	upsertMemory = `INSERT INTO graph_memories (owner_id, id, created_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id, id) DO UPDATE SET created_at = excluded.created_at, payload = excluded.payload`

	upsertEntity = `INSERT INTO graph_entities (owner_id, id, name, norm_name, type, first_seen_at, mention_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, id) DO UPDATE SET mention_count = graph_entities.mention_count + excluded.mention_count`

	upsertEdge = `INSERT INTO graph_edges (owner_id, type, from_id, to_id, weight, last_seen_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, type, from_id, to_id) DO UPDATE SET
			weight = CASE WHEN excluded.type = 'co-occurs' THEN graph_edges.weight + excluded.weight ELSE excluded.weight END,
			last_seen_at = CASE WHEN excluded.last_seen_at > graph_edges.last_seen_at THEN excluded.last_seen_at ELSE graph_edges.last_seen_at END`
)
