// Package inmemory is a map-backed graph.Driver for tests and single
// process deployments.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

type edgeKey struct {
	typ      memory.EdgeType
	from, to string
}

type ownerGraph struct {
	memories map[string]*memory.Memory
	entities map[string]*memory.Entity
	edges    map[edgeKey]*memory.Edge

	// adjacency, both directions, keyed by node ID
	adj map[string]map[edgeKey]struct{}
}

func newOwnerGraph() *ownerGraph {
	return &ownerGraph{
		memories: make(map[string]*memory.Memory),
		entities: make(map[string]*memory.Entity),
		edges:    make(map[edgeKey]*memory.Edge),
		adj:      make(map[string]map[edgeKey]struct{}),
	}
}

func (g *ownerGraph) link(k edgeKey) {
	for _, id := range []string{k.from, k.to} {
		if g.adj[id] == nil {
			g.adj[id] = make(map[edgeKey]struct{})
		}
		g.adj[id][k] = struct{}{}
	}
}

func (g *ownerGraph) unlink(k edgeKey) {
	delete(g.edges, k)
	for _, id := range []string{k.from, k.to} {
		delete(g.adj[id], k)
		if len(g.adj[id]) == 0 {
			delete(g.adj, id)
		}
	}
}

// Driver implements graph.Driver with per-owner maps.
type Driver struct {
	mu      sync.RWMutex
	owners  map[string]*ownerGraph
	applied map[string]struct{}
}

// NewDriver creates an empty in-memory graph.
func NewDriver() *Driver {
	return &Driver{
		owners:  make(map[string]*ownerGraph),
		applied: make(map[string]struct{}),
	}
}

// Write applies the batch under one lock so readers never see half of it.
func (d *Driver) Write(ctx context.Context, b *graph.Batch) error {
	if err := graph.ValidateBatch(b); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return memory.AdapterError("graph write", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.applied[b.Token]; ok {
		return nil
	}

	g, ok := d.owners[b.OwnerID]
	if !ok {
		g = newOwnerGraph()
		d.owners[b.OwnerID] = g
	}

	node := b.Memory.Clone()
	node.Embedding = nil
	g.memories[node.ID] = node

	for _, e := range b.Entities {
		if cur, ok := g.entities[e.ID]; ok {
			cur.MentionCount += e.MentionCount
			continue
		}
		ent := e
		g.entities[e.ID] = &ent
	}

	for _, e := range b.Edges {
		k := edgeKey{typ: e.Type, from: e.From, to: e.To}
		cur, ok := g.edges[k]
		if !ok {
			edge := e
			g.edges[k] = &edge
			g.link(k)
			continue
		}
		if e.Type == memory.EdgeCoOccurs {
			cur.Weight += e.Weight
		} else {
			cur.Weight = e.Weight
		}
		if e.LastSeenAt.After(cur.LastSeenAt) {
			cur.LastSeenAt = e.LastSeenAt
		}
	}

	d.applied[b.Token] = struct{}{}
	return nil
}

// Traverse walks the owner's graph.
func (d *Driver) Traverse(ctx context.Context, req graph.TraverseRequest) ([]graph.Reach, error) {
	return graph.Walk(ctx, req, func(_ context.Context, frontier []graph.Node) ([]graph.Link, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()

		g, ok := d.owners[req.OwnerID]
		if !ok {
			return nil, nil
		}

		var links []graph.Link
		for _, n := range frontier {
			for k := range g.adj[n.ID] {
				if !req.Allows(k.typ) {
					continue
				}
				if k.typ == memory.EdgeCoOccurs && g.edges[k].Weight < req.MinWeight {
					continue
				}
				other := k.to
				if other == n.ID {
					other = k.from
				}
				kind := graph.KindEntity
				if _, isMemory := g.memories[other]; isMemory {
					kind = graph.KindMemory
				}
				links = append(links, graph.Link{From: n.ID, To: graph.Node{ID: other, Kind: kind}})
			}
		}
		return links, nil
	})
}

// FindEntities matches names against normalized entity names.
func (d *Driver) FindEntities(_ context.Context, ownerID string, names []string) ([]memory.Entity, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.owners[ownerID]
	if !ok {
		return nil, nil
	}

	var out []memory.Entity
	for _, e := range g.entities {
		if graph.MatchesAny(e.Name, names) {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b memory.Entity) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// GetMemories returns copies of the requested memory nodes.
func (d *Driver) GetMemories(_ context.Context, ownerID string, ids []string) ([]*memory.Memory, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.owners[ownerID]
	if !ok {
		return nil, nil
	}

	out := make([]*memory.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := g.memories[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

// Related counts entities memoryID shares with every other memory.
func (d *Driver) Related(_ context.Context, ownerID, memoryID string, limit int) ([]graph.Related, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.owners[ownerID]
	if !ok {
		return nil, nil
	}
	if _, ok := g.memories[memoryID]; !ok {
		return nil, memory.ErrNotFound
	}

	shared := make(map[string]int)
	for k := range g.adj[memoryID] {
		if k.typ != memory.EdgeMentions || k.from != memoryID {
			continue
		}
		for other := range g.adj[k.to] {
			if other.typ == memory.EdgeMentions && other.from != memoryID {
				shared[other.from]++
			}
		}
	}

	out := make([]graph.Related, 0, len(shared))
	for id, n := range shared {
		out = append(out, graph.Related{MemoryID: id, Shared: n})
	}
	graph.SortRelated(out)
	return limitSlice(out, limit), nil
}

// TopEntities counts mentions from memories created at or after since.
func (d *Driver) TopEntities(_ context.Context, ownerID string, since time.Time, limit int) ([]graph.EntityCount, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.owners[ownerID]
	if !ok {
		return nil, nil
	}

	counts := make(map[string]int)
	for k := range g.edges {
		if k.typ != memory.EdgeMentions {
			continue
		}
		if m := g.memories[k.from]; m != nil && !m.CreatedAt.Before(since) {
			counts[k.to]++
		}
	}

	out := make([]graph.EntityCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, graph.EntityCount{Entity: *g.entities[id], Mentions: n})
	}
	graph.SortEntityCounts(out)
	return limitSlice(out, limit), nil
}

// RecentMemories returns memories newest first.
func (d *Driver) RecentMemories(_ context.Context, ownerID string, since time.Time, limit int) ([]*memory.Memory, error) {
	if ownerID == "" {
		return nil, graph.ErrOwnerRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.owners[ownerID]
	if !ok {
		return nil, nil
	}

	var out []*memory.Memory
	for _, m := range g.memories {
		if !m.CreatedAt.Before(since) {
			out = append(out, m.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *memory.Memory) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return limitSlice(out, limit), nil
}

// DeleteMemory drops the memory node and its mentions edges.
func (d *Driver) DeleteMemory(_ context.Context, ownerID, memoryID string) error {
	if ownerID == "" {
		return graph.ErrOwnerRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.owners[ownerID]
	if !ok {
		return nil
	}
	for k := range g.adj[memoryID] {
		g.unlink(k)
	}
	delete(g.memories, memoryID)
	return nil
}

// Decay scales stale co-occurs edges.
func (d *Driver) Decay(_ context.Context, factor float64, cutoff time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int64
	for _, g := range d.owners {
		for k, e := range g.edges {
			if k.typ == memory.EdgeCoOccurs && e.LastSeenAt.Before(cutoff) {
				e.Weight *= factor
				n++
			}
		}
	}
	return n, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func limitSlice[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
