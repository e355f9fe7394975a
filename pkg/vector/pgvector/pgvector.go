// Package pgvector provides a vector driver backed by PostgreSQL with the
// pgvector extension, queried through a pgx connection pool.
package pgvector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

// Config holds configuration for the pgvector driver.
type Config struct {
	// ConnString is a postgres:// URL.
	ConnString string

	// Dimensions sizes the embedding column.
	Dimensions uint

	// MaxConns caps the pool. Zero keeps the pgx default.
	MaxConns int32
}

// Driver implements vector.Driver on a mnemo_vectors table.
type Driver struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

// NewDriver connects, ensures the extension and table exist, and returns a
// ready driver.
func NewDriver(ctx context.Context, c Config, log *slog.Logger) (*Driver, error) {
	log = logger.OrNop(log)

	if c.ConnString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("pgvector embedding dimensions cannot be 0, must be configured")
	}

	cfg, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating connection pool: %w", vector.ErrConnection, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging database: %w", vector.ErrConnection, err)
	}

	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS mnemo_vectors (
			owner_id TEXT NOT NULL,
			id TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (owner_id, id)
		)`, c.Dimensions),
		`CREATE INDEX IF NOT EXISTS mnemo_vectors_embedding_idx
			ON mnemo_vectors USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating pgvector schema: %w", err)
		}
	}

	log.Info("pgvector vector driver initialized", "dimensions", c.Dimensions)

	return &Driver{pool: pool, dimensions: int(c.Dimensions), logger: log}, nil
}

func (d *Driver) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.ValidateDocuments(docs, d.dimensions); err != nil {
		return err
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return memory.AdapterError("pgvector begin", err)
	}
	defer tx.Rollback(ctx)

	for _, doc := range docs {
		payload, err := vector.EncodePayload(doc.Memory)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO mnemo_vectors (owner_id, id, embedding, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (owner_id, id) DO UPDATE
			SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload
		`, doc.OwnerID, doc.ID, pgvector.NewVector(doc.Embedding), payload)
		if err != nil {
			return memory.AdapterError("pgvector upsert "+doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return memory.AdapterError("pgvector commit", err)
	}

	d.logger.Debug("upserted documents to pgvector", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if filter.OwnerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if topK <= 0 {
		topK = 10
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, payload, 1 - (embedding <=> $1) AS similarity
		FROM mnemo_vectors
		WHERE owner_id = $2
		ORDER BY embedding <=> $1, id
		LIMIT $3
	`, pgvector.NewVector(embedding), filter.OwnerID, topK)
	if err != nil {
		return nil, memory.AdapterError("pgvector query", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var id, payload string
		var similarity float64
		if err := rows.Scan(&id, &payload, &similarity); err != nil {
			return nil, memory.AdapterError("pgvector scan", err)
		}
		m, err := vector.DecodePayload(payload)
		if err != nil {
			d.logger.Warn("skipping document with unreadable payload", "doc_id", id, "error", err)
			continue
		}
		results = append(results, vector.QueryResult{
			Document: vector.Document{ID: id, OwnerID: filter.OwnerID, Memory: m},
			Score:    float32(similarity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("pgvector iterate", err)
	}

	return results, nil
}

func (d *Driver) Get(ctx context.Context, ownerID string, ids []string) ([]vector.Document, error) {
	if ownerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, embedding, payload
		FROM mnemo_vectors
		WHERE owner_id = $1 AND id = ANY($2)
	`, ownerID, ids)
	if err != nil {
		return nil, memory.AdapterError("pgvector get", err)
	}
	defer rows.Close()

	var docs []vector.Document
	for rows.Next() {
		var id, payload string
		var emb pgvector.Vector
		if err := rows.Scan(&id, &emb, &payload); err != nil {
			return nil, memory.AdapterError("pgvector scan", err)
		}
		m, err := vector.DecodePayload(payload)
		if err != nil {
			d.logger.Warn("skipping document with unreadable payload", "doc_id", id, "error", err)
			continue
		}
		docs = append(docs, vector.Document{ID: id, OwnerID: ownerID, Embedding: emb.Slice(), Memory: m})
	}
	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("pgvector iterate", err)
	}
	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ownerID string, ids []string) error {
	if ownerID == "" {
		return vector.ErrOwnerRequired
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := d.pool.Exec(ctx, `DELETE FROM mnemo_vectors WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids)
	if err != nil {
		return memory.AdapterError("pgvector delete", err)
	}
	return nil
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

var _ vector.Driver = (*Driver)(nil)
