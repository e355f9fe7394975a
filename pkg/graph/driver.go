// Package graph provides the graph store adapter: memory and entity nodes,
// typed weighted edges between them, and bounded-depth traversal from a set
// of seed entities.
//
// The node set is bipartite. Memories point at the entities they mention;
// entities named by the same memory are linked by a single co-occurs edge
// per unordered pair. Traversal walks both edge types in both directions, so
// a memory that directly mentions a seed is one hop away and a memory that
// mentions something the seed co-occurs with is two hops away.
//
// Drivers are pluggable via configuration:
//
//	[graph_store]
//	provider = "sqlite"   # or "inmemory", "postgres"
package graph

import (
	"context"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Driver is the graph store contract.
type Driver interface {
	// Write applies a batch as one logical unit: node upserts, mention
	// counts and edge weight deltas either all land or none do. A batch
	// whose Token was already applied is a no-op, so retries are safe.
	Write(ctx context.Context, b *Batch) error

	// Traverse walks from the seed entities up to MaxDepth hops and
	// returns every memory reached with its smallest hop count. If ctx
	// ends mid-walk, the memories found so far are returned together with
	// an error wrapping memory.ErrAdapterTimeout.
	Traverse(ctx context.Context, req TraverseRequest) ([]Reach, error)

	// FindEntities resolves names to the owner's entities. A name matches
	// an entity whose normalized name equals it or contains it as whole
	// words, regardless of entity type.
	FindEntities(ctx context.Context, ownerID string, names []string) ([]memory.Entity, error)

	// GetMemories returns the owner's memory nodes by ID. Missing IDs are
	// skipped.
	GetMemories(ctx context.Context, ownerID string, ids []string) ([]*memory.Memory, error)

	// Related returns memories sharing at least one entity with memoryID,
	// most shared entities first.
	Related(ctx context.Context, ownerID, memoryID string, limit int) ([]Related, error)

	// TopEntities returns the owner's most mentioned entities among
	// memories created at or after since.
	TopEntities(ctx context.Context, ownerID string, since time.Time, limit int) ([]EntityCount, error)

	// RecentMemories returns the owner's memories created at or after
	// since, newest first.
	RecentMemories(ctx context.Context, ownerID string, since time.Time, limit int) ([]*memory.Memory, error)

	// DeleteMemory removes a memory node and its mentions edges. Entities
	// and co-occurs edges are kept.
	DeleteMemory(ctx context.Context, ownerID, memoryID string) error

	// Decay multiplies the weight of every co-occurs edge last seen before
	// cutoff by factor and returns how many edges changed.
	Decay(ctx context.Context, factor float64, cutoff time.Time) (int64, error)

	// Close releases any resources held by the driver.
	Close() error
}

// Batch is everything one ingestion writes to the graph.
type Batch struct {
	// Token identifies this ingestion. Re-applying a token is a no-op.
	Token string

	OwnerID string

	// Memory is the memory node. Its embedding is not stored.
	Memory *memory.Memory

	// Entities are upserted; MentionCount is the increment to apply, and
	// FirstSeenAt is only used when the entity is new.
	Entities []memory.Entity

	// Edges are upserted. For mentions edges the weight is set; for
	// co-occurs edges Weight is added to the existing weight.
	Edges []memory.Edge
}

// TraverseRequest scopes a traversal.
type TraverseRequest struct {
	OwnerID  string
	SeedIDs  []string
	MaxDepth int

	// EdgeTypes restricts the walk. Empty means every type.
	EdgeTypes []memory.EdgeType

	// MinWeight skips co-occurs edges lighter than this.
	MinWeight float64
}

// Allows reports whether t is walkable under the request's filter.
func (r TraverseRequest) Allows(t memory.EdgeType) bool {
	if len(r.EdgeTypes) == 0 {
		return true
	}
	for _, et := range r.EdgeTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Reach is a memory found by a traversal.
type Reach struct {
	MemoryID string

	// Hops is the number of edges from the nearest seed.
	Hops int

	// SeedID is the seed entity the shortest path started from.
	SeedID string
}

// Related is a memory connected to another through shared entities.
type Related struct {
	MemoryID string
	Shared   int
}

// EntityCount pairs an entity with a mention count over a window.
type EntityCount struct {
	Entity   memory.Entity `json:"entity"`
	Mentions int           `json:"mentions"`
}
