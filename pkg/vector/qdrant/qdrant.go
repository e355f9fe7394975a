// Package qdrant provides a vector driver backed by Qdrant over gRPC.
//
// Point IDs are derived from (owner, memory ID) so that arbitrary memory IDs
// map onto the UUIDs Qdrant requires. The owner is a keyword-indexed payload
// field used as a must-match filter on every query.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

const (
	DefaultCollectionName = "mnemo"
	DefaultPort           = 6334

	ownerKey   = "owner_id"
	docKey     = "doc_id"
	payloadKey = "memory"
)

var pointNamespace = uuid.MustParse("0f0c8a8e-94a1-4c59-9a53-3c2e2f7b6d11")

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// Dimensions sizes the collection when it has to be created.
	Dimensions uint64
}

// Driver implements vector.Driver using the Qdrant gRPC client.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and makes sure the collection and its owner
// index exist.
func NewDriver(ctx context.Context, c Config, log *slog.Logger) (*Driver, error) {
	log = logger.OrNop(log)

	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, collection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     c.Dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}

		_, err = client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      ownerKey,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("indexing %s on %q: %w", ownerKey, collection, err)
		}
	}

	log.Info("connected to Qdrant",
		"host", c.Host,
		"port", c.Port,
		"collection", collection,
		"created", !exists,
	)

	return &Driver{client: client, collection: collection, logger: log}, nil
}

func pointID(ownerID, id string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(ownerID+"\x00"+id)).String())
}

func (d *Driver) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.ValidateDocuments(docs, 0); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		payload, err := vector.EncodePayload(doc.Memory)
		if err != nil {
			return err
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(doc.OwnerID, doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				ownerKey:   doc.OwnerID,
				docKey:     doc.ID,
				payloadKey: payload,
			}),
		})
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return memory.AdapterError("qdrant upsert", err)
	}

	d.logger.Debug("upserted documents to qdrant", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if filter.OwnerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(ownerKey, filter.OwnerID)},
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, memory.AdapterError("qdrant query", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		doc, ok := d.fromPayload(filter.OwnerID, p.GetPayload())
		if !ok {
			continue
		}
		results = append(results, vector.QueryResult{Document: doc, Score: p.GetScore()})
	}

	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

func (d *Driver) Get(ctx context.Context, ownerID string, ids []string) ([]vector.Document, error) {
	if ownerID == "" {
		return nil, vector.ErrOwnerRequired
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(ownerID, id)
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pids,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, memory.AdapterError("qdrant get", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		doc, ok := d.fromPayload(ownerID, p.GetPayload())
		if !ok {
			continue
		}
		doc.Embedding = p.GetVectors().GetVector().GetData()
		docs = append(docs, doc)
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

	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(ownerID, id)
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pids...),
	})
	if err != nil {
		return memory.AdapterError("qdrant delete", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}

func (d *Driver) fromPayload(ownerID string, payload map[string]*qdrant.Value) (vector.Document, bool) {
	if payload[ownerKey].GetStringValue() != ownerID {
		return vector.Document{}, false
	}
	id := payload[docKey].GetStringValue()
	m, err := vector.DecodePayload(payload[payloadKey].GetStringValue())
	if err != nil {
		d.logger.Warn("skipping point with unreadable payload", "doc_id", id, "error", err)
		return vector.Document{}, false
	}
	return vector.Document{ID: id, OwnerID: ownerID, Memory: m}, true
}

var _ vector.Driver = (*Driver)(nil)
