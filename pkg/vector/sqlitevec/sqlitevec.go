// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
//
// Embeddings live in a vec0 virtual table partitioned by owner and using the
// cosine metric; the memory payload lives in a plain mapping table keyed by
// the vec0 rowid.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db         *sql.DB
	dimensions int
	logger     *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	// Required: vec0 tables are created with a fixed width.
	Dimensions uint
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	log = logger.OrNop(log)

	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dimensions := c.Dimensions
	if dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if c.DBPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so we need a mapping from
	// (owner, memory ID) to integer rowids. The payload rides along here.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			UNIQUE(owner_id, doc_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
			owner_id text partition key,
			embedding float[%d] distance_metric=cosine
		)`,
		dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	log.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", dimensions,
		"vec_version", vecVersion,
	)

	return &Driver{
		db:         db,
		dimensions: int(dimensions),
		logger:     log,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Upsert stores documents with their embeddings.
// If a document with the same owner and ID already exists, it is replaced.
func (d *Driver) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.ValidateDocuments(docs, d.dimensions); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.AdapterError("sqlite-vec begin", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		payload, err := vector.EncodePayload(doc.Memory)
		if err != nil {
			return err
		}
		embBlob := serializeFloat32(doc.Embedding)

		var rowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_documents WHERE owner_id = ? AND doc_id = ?`, doc.OwnerID, doc.ID,
		).Scan(&rowID)

		switch err {
		case nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_documents SET payload = ? WHERE rowid = ?`, payload, rowID,
			); err != nil {
				return memory.AdapterError("sqlite-vec update "+doc.ID, err)
			}

			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
			); err != nil {
				return memory.AdapterError("sqlite-vec delete old embedding "+doc.ID, err)
			}
		case sql.ErrNoRows:
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_documents(owner_id, doc_id, payload) VALUES (?, ?, ?)`,
				doc.OwnerID, doc.ID, payload,
			)
			if err != nil {
				return memory.AdapterError("sqlite-vec insert "+doc.ID, err)
			}

			rowID, err = result.LastInsertId()
			if err != nil {
				return memory.AdapterError("sqlite-vec rowid "+doc.ID, err)
			}
		default:
			return memory.AdapterError("sqlite-vec lookup "+doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_embeddings(rowid, owner_id, embedding) VALUES (?, ?, ?)`,
			rowID, doc.OwnerID, embBlob,
		); err != nil {
			return memory.AdapterError("sqlite-vec insert embedding "+doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return memory.AdapterError("sqlite-vec commit", err)
	}

	d.logger.Debug("upserted documents to sqlite-vec", "count", len(docs))
	return nil
}

// Query finds the owner's topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if filter.OwnerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if len(embedding) != d.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", vector.ErrDimension, len(embedding), d.dimensions)
	}
	if topK <= 0 {
		topK = 10
	}

	// KNN over the owner's partition first, then join back for the payload.
	rows, err := d.db.QueryContext(ctx, `
		WITH knn AS (
			SELECT rowid, distance
			FROM vec_embeddings
			WHERE embedding MATCH ?
				AND k = ?
				AND owner_id = ?
		)
		SELECT d.doc_id, d.payload, knn.distance
		FROM knn
		INNER JOIN vec_documents d ON d.rowid = knn.rowid
		ORDER BY knn.distance, d.doc_id
	`, serializeFloat32(embedding), topK, filter.OwnerID)
	if err != nil {
		return nil, memory.AdapterError("sqlite-vec query", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var docID, payload string
		var distance float64
		if err := rows.Scan(&docID, &payload, &distance); err != nil {
			return nil, memory.AdapterError("sqlite-vec scan", err)
		}

		m, err := vector.DecodePayload(payload)
		if err != nil {
			d.logger.Warn("skipping document with unreadable payload", "doc_id", docID, "error", err)
			continue
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:      docID,
				OwnerID: filter.OwnerID,
				Memory:  m,
			},
			// cosine distance is 1 - similarity
			Score: float32(1 - distance),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("sqlite-vec iterate", err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(results))
	return results, nil
}

// Get retrieves an owner's documents by their IDs.
func (d *Driver) Get(ctx context.Context, ownerID string, ids []string) ([]vector.Document, error) {
	if ownerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if len(ids) == 0 {
		return nil, nil
	}

	inClause, args := in(ids)
	query := fmt.Sprintf(`
		SELECT d.doc_id, d.payload, d.rowid
		FROM vec_documents d
		WHERE d.owner_id = ? AND d.doc_id IN (%s)
	`, inClause)

	rows, err := d.db.QueryContext(ctx, query, append([]any{ownerID}, args...)...)
	if err != nil {
		return nil, memory.AdapterError("sqlite-vec get", err)
	}
	defer rows.Close()

	// Collect results first so we can close the rows cursor before
	// issuing additional queries (SQLite may use a single connection).
	type docRow struct {
		docID   string
		payload string
		rowID   int64
	}
	var docRows []docRow

	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.docID, &dr.payload, &dr.rowID); err != nil {
			return nil, memory.AdapterError("sqlite-vec scan", err)
		}
		docRows = append(docRows, dr)
	}

	if err := rows.Err(); err != nil {
		return nil, memory.AdapterError("sqlite-vec iterate", err)
	}
	rows.Close()

	docs := make([]vector.Document, 0, len(docRows))
	for _, dr := range docRows {
		m, err := vector.DecodePayload(dr.payload)
		if err != nil {
			d.logger.Warn("skipping document with unreadable payload", "doc_id", dr.docID, "error", err)
			continue
		}
		doc := vector.Document{ID: dr.docID, OwnerID: ownerID, Memory: m}

		var embBlob []byte
		err = d.db.QueryRowContext(ctx,
			`SELECT embedding FROM vec_embeddings WHERE rowid = ?`, dr.rowID,
		).Scan(&embBlob)
		if err == nil && len(embBlob) > 0 {
			doc.Embedding, _ = deserializeFloat32(embBlob)
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// Delete removes an owner's documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ownerID string, ids []string) error {
	if ownerID == "" {
		return vector.ErrOwnerRequired
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.AdapterError("sqlite-vec begin", err)
	}
	defer tx.Rollback()

	inClause, args := in(ids)
	args = append([]any{ownerID}, args...)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid FROM vec_documents WHERE owner_id = ? AND doc_id IN (%s)`, inClause,
	), args...)
	if err != nil {
		return memory.AdapterError("sqlite-vec select rowids", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return memory.AdapterError("sqlite-vec scan rowid", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return memory.AdapterError("sqlite-vec iterate rowids", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return memory.AdapterError(fmt.Sprintf("sqlite-vec delete embedding %d", rowID), err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM vec_documents WHERE owner_id = ? AND doc_id IN (%s)`, inClause,
	), args...); err != nil {
		return memory.AdapterError("sqlite-vec delete documents", err)
	}

	if err := tx.Commit(); err != nil {
		return memory.AdapterError("sqlite-vec commit", err)
	}

	d.logger.Debug("deleted documents from sqlite-vec", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func in(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

var _ vector.Driver = (*Driver)(nil)
