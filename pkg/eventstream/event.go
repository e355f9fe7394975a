package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryIngested is emitted after a memory's vector write
	// commits.
	EventTypeMemoryIngested = "mnemo.memory.ingested"

	// EventTypeGraphReconciled is emitted when a memory's delayed graph
	// write finally lands.
	EventTypeGraphReconciled = "mnemo.memory.graph_reconciled"

	// EventTypeMemoryDeleted is emitted after a memory is removed from both
	// stores.
	EventTypeMemoryDeleted = "mnemo.memory.deleted"
)

// MemoryEvent is a transport-neutral event payload about one memory.
type MemoryEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	Memory        MemoryMeta `json:"memory"`
	Graph         GraphMeta  `json:"graph"`
}

// MemoryMeta is the memory without its content or embedding. Consumers
// that need the content read it back through the API.
type MemoryMeta struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"owner_id"`
	ContentType memory.ContentType `json:"content_type,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Entities    []memory.EntityRef `json:"entities,omitempty"`
	Sentiment   memory.Sentiment   `json:"sentiment,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	HasVector   bool               `json:"has_vector"`
}

// GraphMeta reports the state of the memory's graph write.
type GraphMeta struct {
	// Complete is false while the graph write is being retried.
	Complete bool   `json:"complete"`
	Token    string `json:"token,omitempty"`
}

// NewMemoryEvent builds an event for m.
func NewMemoryEvent(eventType string, m *memory.Memory, graph GraphMeta, at time.Time) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     at.UTC(),
		Memory: MemoryMeta{
			ID:          m.ID,
			OwnerID:     m.OwnerID,
			ContentType: m.ContentType,
			CreatedAt:   m.CreatedAt,
			Entities:    m.Entities,
			Sentiment:   m.Sentiment,
			Tags:        m.Tags,
			HasVector:   m.Embedding != nil,
		},
		Graph: graph,
	}
}
