// Package chroma provides a Chroma vector database driver implementation.
//
// All owners share one collection created with the cosine space; owner
// isolation is a metadata "where" filter on every query and read.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing memory embeddings.
	DefaultCollectionName = "mnemo"

	DefaultMaxRetries    = 5
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetryDelay = 5 * time.Second

	ownerKey   = "owner_id"
	payloadKey = "memory"
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// MaxRetries bounds connection attempts while Chroma is starting up.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver, retrying the collection
// lookup with exponential backoff until Chroma answers.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	log = logger.OrNop(log)

	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: collectionName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: log,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.MaxInterval = c.MaxRetryDelay
	b.MaxElapsedTime = 0

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		id, err := d.getOrCreateCollection(context.Background())
		if err != nil {
			return err
		}
		d.collectionID = id
		return nil
	}, backoff.WithMaxRetries(b, uint64(c.MaxRetries-1)), func(err error, wait time.Duration) {
		log.Warn("chroma not ready, retrying", "attempt", attempts, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: getting or creating collection %q after %d attempts: %w",
			vector.ErrConnection, collectionName, attempts, err)
	}

	log.Info("connected to Chroma",
		"url", c.URL,
		"collection", collectionName,
		"collection_id", d.collectionID,
	)

	return d, nil
}

func (d *Driver) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections%s", d.baseURL, suffix)
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.collectionURL("/"+d.collectionName), nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	var collection chromaCollection
	err = d.post(ctx, "", chromaCreateRequest{
		Name:     d.collectionName,
		Metadata: map[string]any{"hnsw:space": "cosine"},
	}, &collection)
	if err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}
	return collection.ID, nil
}

// post sends a JSON request to the collections API. A non-nil out receives
// the decoded response body.
func (d *Driver) post(ctx context.Context, suffix string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.collectionURL(suffix), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Upsert stores documents with their embeddings.
func (d *Driver) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.ValidateDocuments(docs, 0); err != nil {
		return err
	}

	reqBody := chromaUpsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
	}

	for i, doc := range docs {
		payload, err := vector.EncodePayload(doc.Memory)
		if err != nil {
			return err
		}
		reqBody.IDs[i] = docKey(doc.OwnerID, doc.ID)
		reqBody.Embeddings[i] = doc.Embedding
		reqBody.Metadatas[i] = map[string]any{
			ownerKey:   doc.OwnerID,
			"doc_id":   doc.ID,
			payloadKey: payload,
		}
	}

	if err := d.post(ctx, "/"+d.collectionID+"/upsert", reqBody, nil); err != nil {
		return memory.AdapterError("chroma upsert", err)
	}

	d.logger.Debug("upserted documents to chroma", "count", len(docs))
	return nil
}

// Query finds the owner's topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if filter.OwnerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if topK <= 0 {
		topK = 10
	}

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Where:           map[string]any{ownerKey: filter.OwnerID},
		Include:         []string{"metadatas", "distances"},
	}

	var queryResp chromaQueryResponse
	if err := d.post(ctx, "/"+d.collectionID+"/query", reqBody, &queryResp); err != nil {
		return nil, memory.AdapterError("chroma query", err)
	}

	// We only query with one embedding, so only the first group matters.
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	var distances []float32
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	results := make([]vector.QueryResult, 0, len(ids))
	for i := range ids {
		var md map[string]any
		if i < len(metadatas) {
			md = metadatas[i]
		}
		doc, ok := d.fromMetadata(filter.OwnerID, md)
		if !ok {
			continue
		}

		result := vector.QueryResult{Document: doc}
		// cosine space: distance is 1 - similarity
		if i < len(distances) {
			result.Score = 1 - distances[i]
		}
		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "results", len(results))
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

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(ownerID, id)
	}

	var getResp chromaGetResponse
	err := d.post(ctx, "/"+d.collectionID+"/get", chromaGetRequest{
		IDs:     keys,
		Where:   map[string]any{ownerKey: ownerID},
		Include: []string{"metadatas", "embeddings"},
	}, &getResp)
	if err != nil {
		return nil, memory.AdapterError("chroma get", err)
	}

	docs := make([]vector.Document, 0, len(getResp.IDs))
	for i := range getResp.IDs {
		var md map[string]any
		if i < len(getResp.Metadatas) {
			md = getResp.Metadatas[i]
		}
		doc, ok := d.fromMetadata(ownerID, md)
		if !ok {
			continue
		}
		if i < len(getResp.Embeddings) {
			doc.Embedding = getResp.Embeddings[i]
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

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(ownerID, id)
	}

	if err := d.post(ctx, "/"+d.collectionID+"/delete", chromaDeleteRequest{IDs: keys}, nil); err != nil {
		return memory.AdapterError("chroma delete", err)
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func (d *Driver) fromMetadata(ownerID string, md map[string]any) (vector.Document, bool) {
	if md == nil {
		return vector.Document{}, false
	}
	// The where filter already scopes by owner; this guards against a
	// server that ignores it.
	if owner, _ := md[ownerKey].(string); owner != ownerID {
		return vector.Document{}, false
	}
	id, _ := md["doc_id"].(string)
	payload, _ := md[payloadKey].(string)
	m, err := vector.DecodePayload(payload)
	if err != nil {
		d.logger.Warn("skipping document with unreadable payload", "doc_id", id, "error", err)
		return vector.Document{}, false
	}
	return vector.Document{ID: id, OwnerID: ownerID, Memory: m}, true
}

// docKey namespaces Chroma IDs by owner so two owners can't collide.
func docKey(ownerID, id string) string {
	return ownerID + ":" + id
}

var _ vector.Driver = (*Driver)(nil)
