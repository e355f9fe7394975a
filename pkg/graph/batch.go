package graph

import (
	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// BuildBatch derives the graph writes for one ingestion of m: the memory
// node, one entity per unique ref (mention delta 1), a mentions edge per
// entity and a +1 co-occurs delta per unordered entity pair. A fresh token
// is minted; reuse the batch to retry the same ingestion.
func BuildBatch(m *memory.Memory) *Batch {
	refs := memory.UniqueRefs(m.Entities)
	node := m.Clone()
	node.Embedding = nil
	node.Entities = refs

	b := &Batch{
		Token:    uuid.NewString(),
		OwnerID:  m.OwnerID,
		Memory:   node,
		Entities: make([]memory.Entity, 0, len(refs)),
		Edges:    make([]memory.Edge, 0, len(refs)+len(refs)*(len(refs)-1)/2),
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id := memory.EntityID(m.OwnerID, ref.Name, ref.Type)
		ids = append(ids, id)
		b.Entities = append(b.Entities, memory.Entity{
			ID:           id,
			OwnerID:      m.OwnerID,
			Name:         ref.Name,
			Type:         ref.Type,
			FirstSeenAt:  m.CreatedAt,
			MentionCount: 1,
		})
		b.Edges = append(b.Edges, memory.Edge{
			OwnerID:    m.OwnerID,
			Type:       memory.EdgeMentions,
			From:       m.ID,
			To:         id,
			Weight:     1,
			LastSeenAt: m.CreatedAt,
		})
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			from, to := memory.PairKey(ids[i], ids[j])
			b.Edges = append(b.Edges, memory.Edge{
				OwnerID:    m.OwnerID,
				Type:       memory.EdgeCoOccurs,
				From:       from,
				To:         to,
				Weight:     1,
				LastSeenAt: m.CreatedAt,
			})
		}
	}

	return b
}
