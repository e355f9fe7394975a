package graph

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// NodeKind separates the two halves of the bipartite graph.
type NodeKind int

const (
	KindEntity NodeKind = iota
	KindMemory
)

// Node is a vertex visited during a walk.
type Node struct {
	ID   string
	Kind NodeKind
}

// Link is one edge crossed while expanding a frontier.
type Link struct {
	From string
	To   Node
}

// ExpandFunc returns every walkable link out of the frontier. Drivers
// implement it against their own storage; the hop bookkeeping lives in Walk
// so all drivers agree on distances.
type ExpandFunc func(ctx context.Context, frontier []Node) ([]Link, error)

// Walk runs a breadth-first traversal from req.SeedIDs. It checks ctx before
// each hop and, when ctx is done, returns what it found so far with a
// timeout error. Results are ordered by hops, then memory ID.
func Walk(ctx context.Context, req TraverseRequest, expand ExpandFunc) ([]Reach, error) {
	if req.OwnerID == "" {
		return nil, ErrOwnerRequired
	}
	if len(req.SeedIDs) == 0 || req.MaxDepth <= 0 {
		return nil, nil
	}

	seedOf := make(map[string]string, len(req.SeedIDs))
	frontier := make([]Node, 0, len(req.SeedIDs))
	for _, id := range req.SeedIDs {
		if _, ok := seedOf[id]; ok {
			continue
		}
		seedOf[id] = id
		frontier = append(frontier, Node{ID: id, Kind: KindEntity})
	}

	var reaches []Reach
	for hop := 1; hop <= req.MaxDepth && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return sortReaches(reaches), memory.AdapterError("graph traverse", err)
		}

		links, err := expand(ctx, frontier)
		if err != nil {
			return sortReaches(reaches), memory.AdapterError("graph traverse", err)
		}

		// Sorting makes the seed attribution stable when two frontier nodes
		// reach the same neighbor in the same hop.
		slices.SortFunc(links, func(a, b Link) int {
			return cmp.Or(strings.Compare(a.From, b.From), strings.Compare(a.To.ID, b.To.ID))
		})

		var next []Node
		for _, l := range links {
			if _, seen := seedOf[l.To.ID]; seen {
				continue
			}
			seed := seedOf[l.From]
			seedOf[l.To.ID] = seed
			next = append(next, l.To)
			if l.To.Kind == KindMemory {
				reaches = append(reaches, Reach{MemoryID: l.To.ID, Hops: hop, SeedID: seed})
			}
		}
		frontier = next
	}

	return sortReaches(reaches), nil
}

func sortReaches(r []Reach) []Reach {
	slices.SortFunc(r, func(a, b Reach) int {
		return cmp.Or(cmp.Compare(a.Hops, b.Hops), strings.Compare(a.MemoryID, b.MemoryID))
	})
	return r
}
