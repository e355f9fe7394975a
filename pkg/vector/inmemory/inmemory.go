// Package inmemory provides a brute-force, in-process vector driver. It is
// the default for local development and the reference the other drivers are
// tested against.
package inmemory

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

// Config holds configuration for the in-memory driver.
type Config struct {
	// Dimensions pins the embedding length. Zero accepts any length.
	Dimensions int
}

// Driver implements vector.Driver over a map per owner.
type Driver struct {
	config Config
	logger *slog.Logger

	mu sync.RWMutex

	// docs maps owner -> memory ID -> document.
	docs map[string]map[string]vector.Document
}

// NewDriver creates an empty in-memory vector driver.
func NewDriver(c Config, log *slog.Logger) *Driver {
	return &Driver{
		config: c,
		logger: logger.OrNop(log),
		docs:   make(map[string]map[string]vector.Document),
	}
}

func (d *Driver) Upsert(_ context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.ValidateDocuments(docs, d.config.Dimensions); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		owned, ok := d.docs[doc.OwnerID]
		if !ok {
			owned = make(map[string]vector.Document)
			d.docs[doc.OwnerID] = owned
		}
		owned[doc.ID] = copyDoc(doc)
	}

	d.logger.Debug("upserted documents", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if filter.OwnerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	results := make([]vector.QueryResult, 0, len(d.docs[filter.OwnerID]))
	for _, doc := range d.docs[filter.OwnerID] {
		results = append(results, vector.QueryResult{
			Document: copyDoc(doc),
			Score:    vector.Cosine(embedding, doc.Embedding),
		})
	}
	d.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (d *Driver) Get(_ context.Context, ownerID string, ids []string) ([]vector.Document, error) {
	if ownerID == "" {
		return nil, vector.ErrOwnerRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := d.docs[ownerID][id]; ok {
			docs = append(docs, copyDoc(doc))
		}
	}
	return docs, nil
}

func (d *Driver) Delete(_ context.Context, ownerID string, ids []string) error {
	if ownerID == "" {
		return vector.ErrOwnerRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs[ownerID], id)
	}
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// copyDoc keeps callers from mutating stored state.
func copyDoc(doc vector.Document) vector.Document {
	doc.Embedding = slices.Clone(doc.Embedding)
	doc.Memory = doc.Memory.Clone()
	return doc
}

var _ vector.Driver = (*Driver)(nil)
