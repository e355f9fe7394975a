// Package vector provides the vector index adapter: owner-scoped storage of
// memory embeddings and cosine top-k search over them.
//
// Drivers are pluggable via configuration:
//
//	[vector_store]
//	provider = "sqlite"   # or "inmemory", "chroma", "qdrant", "pgvector"
package vector

import (
	"context"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Document is one memory as the vector index stores it.
type Document struct {
	// ID is the memory ID.
	ID string

	// OwnerID scopes every read and write.
	OwnerID string

	// Embedding is the vector representation of the memory content.
	Embedding []float32

	// Memory is the payload stored next to the embedding. Drivers may
	// return it without the embedding populated.
	Memory *memory.Memory
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity between the query and the document,
	// in [-1, 1] (higher = more similar).
	Score float32
}

// Filter scopes a query. OwnerID is required.
type Filter struct {
	OwnerID string
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Upsert stores documents with their embeddings.
	// If a document with the same ID already exists, it is replaced.
	Upsert(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents owned by filter.OwnerID.
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]QueryResult, error)

	// Get retrieves an owner's documents by ID. Missing IDs are skipped.
	Get(ctx context.Context, ownerID string, ids []string) ([]Document, error)

	// Delete removes an owner's documents by ID.
	Delete(ctx context.Context, ownerID string, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
