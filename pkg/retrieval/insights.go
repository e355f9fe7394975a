package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// maxInsightMemories caps how many recent memories Insights reads.
const maxInsightMemories = 1000

// Proactive surfaces memories the owner is likely to need next: it builds a
// query from the entities trending in the proactive window and the current
// input, and retrieves with it. The graph stage is what makes this useful,
// so a failing graph store still returns a vector-only context.
func (e *Engine) Proactive(ctx context.Context, ownerID, currentInput string, budget int) (*Context, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)
	}

	since := e.cfg.Clock().Add(-e.cfg.ProactiveWindow)
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	trending, err := e.graph.TopEntities(gctx, ownerID, since, e.cfg.TrendingEntities)
	cancel()
	if err != nil {
		e.log.Warn("trending entities unavailable", "owner_id", ownerID, "error", err)
		trending = nil
	}

	parts := make([]string, 0, len(trending)+1)
	if in := strings.TrimSpace(currentInput); in != "" {
		parts = append(parts, in)
	}
	for _, t := range trending {
		parts = append(parts, t.Entity.Name)
	}
	if len(parts) == 0 {
		return &Context{Budget: budget}, nil
	}

	return e.Retrieve(ctx, Query{
		Text:         strings.Join(parts, ", "),
		OwnerID:      ownerID,
		BudgetTokens: budget,
	}, Options{})
}

// Recent returns the owner's memories from the session window, newest
// first. limit <= 0 means DefaultRecentLimit.
func (e *Engine) Recent(ctx context.Context, ownerID string, limit int) ([]*memory.Memory, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	defer cancel()

	since := e.cfg.Clock().Add(-e.cfg.SessionWindow)
	mems, err := e.graph.RecentMemories(gctx, ownerID, since, limit)
	if err != nil {
		return nil, memory.AdapterError("graph recent memories", err)
	}
	return mems, nil
}

// Connection is a memory linked to another through shared entities.
type Connection struct {
	Memory *memory.Memory `json:"memory"`
	Shared int            `json:"shared_entities"`
}

// Connections lists memories sharing entities with memoryID, most shared
// first.
func (e *Engine) Connections(ctx context.Context, ownerID, memoryID string, limit int) ([]Connection, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(memoryID) == "" {
		return nil, fmt.Errorf("%w: owner id and memory id are required", memory.ErrInvalidInput)
	}

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	defer cancel()

	related, err := e.graph.Related(gctx, ownerID, memoryID, limit)
	if err != nil {
		return nil, memory.AdapterError("graph related", err)
	}
	if len(related) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(related))
	for _, r := range related {
		ids = append(ids, r.MemoryID)
	}
	mems, err := e.loadMemories(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*memory.Memory, len(mems))
	for _, m := range mems {
		byID[m.ID] = m
	}
	out := make([]Connection, 0, len(related))
	for _, r := range related {
		if m, ok := byID[r.MemoryID]; ok {
			out = append(out, Connection{Memory: m, Shared: r.Shared})
		}
	}
	return out, nil
}

// Insights summarizes an owner's recent memories.
type Insights struct {
	Since        time.Time                  `json:"since"`
	Total        int                        `json:"total"`
	TopEntities  []graph.EntityCount        `json:"top_entities"`
	ContentTypes map[memory.ContentType]int `json:"content_types"`
	Sentiments   map[memory.Sentiment]int   `json:"sentiments"`
}

// Insights reports trending entities and the content type and sentiment
// mix over the proactive window.
func (e *Engine) Insights(ctx context.Context, ownerID string) (*Insights, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)
	}

	since := e.cfg.Clock().Add(-e.cfg.ProactiveWindow)
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	defer cancel()

	top, err := e.graph.TopEntities(gctx, ownerID, since, e.cfg.TrendingEntities)
	if err != nil {
		return nil, memory.AdapterError("graph top entities", err)
	}
	recent, err := e.graph.RecentMemories(gctx, ownerID, since, maxInsightMemories)
	if err != nil {
		return nil, memory.AdapterError("graph recent memories", err)
	}

	in := &Insights{
		Since:        since,
		Total:        len(recent),
		TopEntities:  top,
		ContentTypes: make(map[memory.ContentType]int),
		Sentiments:   make(map[memory.Sentiment]int),
	}
	for _, m := range recent {
		ct := m.ContentType
		if ct == "" {
			ct = memory.ContentText
		}
		in.ContentTypes[ct]++
		s := m.Sentiment
		if s == "" {
			s = memory.SentimentNeutral
		}
		in.Sentiments[s]++
	}
	return in, nil
}
