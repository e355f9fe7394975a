// Package retrieval is the hybrid retrieval engine. A query runs a vector
// stage and a graph stage concurrently, scores every candidate with a
// recency multiplier, fuses the three signals into one ranking and packs
// the best memories into a token budget.
//
// The vector stage is the recall floor: if the vector store fails the call
// fails. A failing graph store only costs the graph signal, and a failing
// model only costs the vector signal, since entity extraction falls back to
// the local heuristic extractor.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/mnemo/pkg/cache"
	"github.com/papercomputeco/mnemo/pkg/embeddings/heuristic"
	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

// Degradation names a stage that didn't contribute fully.
type Degradation string

const (
	DegradedEmbedding  Degradation = "embedding_unavailable"
	DegradedExtraction Degradation = "extraction_fallback"
	DegradedGraph      Degradation = "graph_unavailable"
	DegradedGraphTime  Degradation = "graph_timeout"
	DegradedHydration  Degradation = "hydration_failed"
)

// QueryClient is the model surface the engine uses. embeddings.Client
// satisfies it.
type QueryClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Extract(ctx context.Context, text string) ([]memory.EntityRef, error)
}

// Query is one retrieval request.
type Query struct {
	// Text is the natural-language query. Required unless Embedding is set,
	// and needed for the graph stage.
	Text string `json:"text,omitempty"`

	// Embedding skips the query embedding call when set.
	Embedding []float32 `json:"embedding,omitempty"`

	OwnerID      string `json:"owner_id"`
	BudgetTokens int    `json:"budget_tokens"`
}

// Options adjust a single call.
type Options struct {
	// GraphDisabled skips the graph stage without touching the graph store.
	GraphDisabled bool `json:"graph_disabled,omitempty"`

	// TopK and Depth override the configured stage sizes when positive.
	TopK  int `json:"top_k,omitempty"`
	Depth int `json:"depth,omitempty"`

	// NoCache bypasses the result cache for reads and writes.
	NoCache bool `json:"-"`
}

// Context is the assembled, token-bounded result.
type Context struct {
	Items      []Item `json:"items"`
	TokenCount int    `json:"token_count"`
	Budget     int    `json:"budget"`

	// Partial is set when a deadline cut the graph traversal short.
	Partial bool `json:"partial"`

	// GraphDisabled is set when the graph stage was skipped or failed.
	GraphDisabled bool `json:"graph_disabled"`

	Degradations []Degradation `json:"degradations,omitempty"`

	// Cached is set when the result was served from the cache.
	Cached bool `json:"cached"`
}

func (c *Context) clone() *Context {
	out := *c
	out.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		it.Memory = it.Memory.Clone()
		out.Items[i] = it
	}
	out.Degradations = slices.Clone(c.Degradations)
	return &out
}

func (c *Context) degrade(d Degradation) {
	if !slices.Contains(c.Degradations, d) {
		c.Degradations = append(c.Degradations, d)
	}
}

// Engine answers retrieval queries. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	vectors vector.Driver
	graph   graph.Driver
	client  QueryClient
	cache   *cache.Cache
	log     *slog.Logger
}

// NewEngine wires the engine. client and c may be nil: without a client
// queries must carry an embedding and extraction is heuristic; without a
// cache every call recomputes.
func NewEngine(cfg Config, vectors vector.Driver, g graph.Driver, client QueryClient, c *cache.Cache) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		vectors: vectors,
		graph:   g,
		client:  client,
		cache:   c,
		log:     logger.OrNop(cfg.Logger),
	}
}

// Retrieve runs a hybrid query and returns the ranked, budgeted context.
func (e *Engine) Retrieve(ctx context.Context, q Query, opts Options) (*Context, error) {
	switch {
	case strings.TrimSpace(q.OwnerID) == "":
		return nil, fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)
	case strings.TrimSpace(q.Text) == "" && len(q.Embedding) == 0:
		return nil, fmt.Errorf("%w: query text or embedding is required", memory.ErrInvalidInput)
	case q.BudgetTokens <= 0:
		return nil, fmt.Errorf("%w: token budget must be positive", memory.ErrInvalidInput)
	case len(q.Embedding) > 0 && e.cfg.Dimensions > 0 && len(q.Embedding) != e.cfg.Dimensions:
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, want %d",
			memory.ErrInvalidInput, len(q.Embedding), e.cfg.Dimensions)
	}

	if e.cache == nil || opts.NoCache {
		return e.retrieve(ctx, q, opts)
	}

	fp := cache.Fingerprint(q.Text, q.Embedding, q.BudgetTokens, opts)
	v, hit, err := e.cache.GetOrLoadRetrieval(ctx, q.OwnerID, fp, func(ctx context.Context) (any, bool, error) {
		rc, err := e.retrieve(ctx, q, opts)
		if err != nil {
			return nil, false, err
		}
		return rc, len(rc.Degradations) == 0, nil
	})
	if err != nil {
		return nil, err
	}

	out := v.(*Context).clone()
	out.Cached = hit
	return out, nil
}

type vectorStage struct {
	results  []vector.QueryResult
	skipped  bool
	degraded []Degradation
	err      error
}

type graphStage struct {
	reaches  []graph.Reach
	degraded []Degradation
	err      error
}

func (e *Engine) retrieve(ctx context.Context, q Query, opts Options) (*Context, error) {
	rc := &Context{Budget: q.BudgetTokens, GraphDisabled: opts.GraphDisabled}
	log := e.log.With("owner_id", q.OwnerID)

	topK := positiveOr(opts.TopK, e.cfg.VectorTopK)
	depth := positiveOr(opts.Depth, e.cfg.GraphDepth)

	var (
		vs vectorStage
		gs graphStage
		g  errgroup.Group
	)

	// Neither stage returns an error to the group: each records its own
	// outcome so one failing stage never cancels the other.
	g.Go(func() error {
		vs = e.vectorStage(ctx, q, topK, log)
		return nil
	})
	graphRan := !opts.GraphDisabled && strings.TrimSpace(q.Text) != ""
	if graphRan {
		g.Go(func() error {
			gs = e.graphStage(ctx, q, depth, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range slices.Concat(vs.degraded, gs.degraded) {
		rc.degrade(d)
	}

	if vs.err != nil {
		return nil, fmt.Errorf("%w: %w", memory.ErrRetrievalUnavailable, vs.err)
	}

	if gs.err != nil {
		if errors.Is(gs.err, memory.ErrAdapterTimeout) {
			rc.Partial = true
			rc.degrade(DegradedGraphTime)
			log.Warn("graph traversal cut short, returning partial results",
				"reached", len(gs.reaches), "error", gs.err)
		} else {
			rc.GraphDisabled = true
			rc.degrade(DegradedGraph)
			gs.reaches = nil
			graphRan = false
			log.Warn("graph stage failed, degrading to vector-only", "error", gs.err)
		}
	}

	if vs.skipped && !graphRan {
		return nil, fmt.Errorf("%w: no retrieval stage could run", memory.ErrRetrievalUnavailable)
	}

	cands := make(map[string]*candidate, len(vs.results)+len(gs.reaches))
	get := func(id string) *candidate {
		c, ok := cands[id]
		if !ok {
			c = &candidate{}
			cands[id] = c
		}
		return c
	}
	for _, r := range vs.results {
		c := get(r.ID)
		c.addVector(r.Score)
		if r.Memory != nil && c.mem == nil {
			c.mem = r.Memory
			if e.cache != nil {
				e.cache.PutMemory(r.Memory)
			}
		}
	}
	for _, r := range gs.reaches {
		get(r.MemoryID).addGraph(r.Hops)
	}

	// A deadline that cut the walk short has already expired ctx; the
	// candidates it reached still get loaded, under the per-call timeouts.
	hctx := ctx
	if ctx.Err() != nil {
		hctx = context.WithoutCancel(ctx)
	}
	if err := e.hydrate(hctx, q.OwnerID, cands); err != nil {
		rc.degrade(DegradedHydration)
		log.Warn("could not load some graph candidates", "error", err)
	}

	ranked := rank(cands, e.cfg.Clock(), *e.cfg.DecayLambda, *e.cfg.Weights)
	rc.Items, rc.TokenCount = assemble(ranked, q.BudgetTokens, e.cfg.Tokens)

	log.Debug("retrieval complete",
		"vector_candidates", len(vs.results),
		"graph_candidates", len(gs.reaches),
		"items", len(rc.Items),
		"tokens", rc.TokenCount,
		"partial", rc.Partial,
		"graph_disabled", rc.GraphDisabled,
	)
	return rc, nil
}

// vectorStage embeds the query when needed and runs the top-k search. A
// model failure skips the stage; a store failure is returned.
func (e *Engine) vectorStage(ctx context.Context, q Query, topK int, log *slog.Logger) vectorStage {
	emb := q.Embedding
	if len(emb) == 0 {
		var err error
		emb, err = e.embed(ctx, q.Text)
		if err != nil {
			log.Warn("query embedding failed, skipping vector stage", "error", err)
			return vectorStage{skipped: true, degraded: []Degradation{DegradedEmbedding}}
		}
	}

	vctx, cancel := context.WithTimeout(ctx, e.cfg.VectorTimeout)
	defer cancel()

	results, err := e.vectors.Query(vctx, emb, topK, vector.Filter{OwnerID: q.OwnerID})
	if err != nil {
		return vectorStage{err: memory.AdapterError("vector query", err)}
	}
	return vectorStage{results: results}
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil {
		return nil, fmt.Errorf("%w: no embedding client configured", memory.ErrModelUnavailable)
	}
	ectx, cancel := context.WithTimeout(ctx, e.cfg.EmbeddingTimeout)
	defer cancel()

	emb, err := e.client.Embed(ectx, text)
	if err != nil {
		return nil, memory.ModelError("embed query", err)
	}
	if len(emb) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", memory.ErrModelUnavailable)
	}
	return emb, nil
}

// graphStage extracts query entities, resolves them to seeds and walks the
// graph. On a timeout the reaches found so far come back with the error.
func (e *Engine) graphStage(ctx context.Context, q Query, depth int, log *slog.Logger) graphStage {
	refs, fellBack := e.extract(ctx, q.Text, log)
	var degraded []Degradation
	if fellBack {
		degraded = append(degraded, DegradedExtraction)
	}
	if len(refs) == 0 {
		return graphStage{degraded: degraded}
	}

	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
	defer cancel()

	entities, err := e.graph.FindEntities(gctx, q.OwnerID, names)
	if err != nil {
		return graphStage{degraded: degraded, err: memory.AdapterError("graph find entities", err)}
	}
	if len(entities) == 0 {
		return graphStage{degraded: degraded}
	}

	seeds := make([]string, 0, len(entities))
	for _, ent := range entities {
		seeds = append(seeds, ent.ID)
	}

	reaches, err := e.graph.Traverse(gctx, graph.TraverseRequest{
		OwnerID:   q.OwnerID,
		SeedIDs:   seeds,
		MaxDepth:  depth,
		EdgeTypes: []memory.EdgeType{memory.EdgeMentions, memory.EdgeCoOccurs},
		MinWeight: e.cfg.MinEdgeWeight,
	})
	if err != nil {
		return graphStage{reaches: reaches, degraded: degraded, err: memory.AdapterError("graph traverse", err)}
	}
	return graphStage{reaches: reaches, degraded: degraded}
}

// extract returns the query's entity mentions and whether the heuristic
// extractor had to stand in for a configured client that failed.
func (e *Engine) extract(ctx context.Context, text string, log *slog.Logger) ([]memory.EntityRef, bool) {
	fellBack := false
	if e.client != nil {
		ectx, cancel := context.WithTimeout(ctx, e.cfg.EmbeddingTimeout)
		refs, err := e.client.Extract(ectx, text)
		cancel()
		if err == nil {
			return memory.UniqueRefs(refs), false
		}
		log.Warn("query entity extraction failed, using heuristic extractor", "error", err)
		fellBack = true
	}

	refs, _ := heuristic.Extract(ctx, text)
	return refs, fellBack
}

// hydrate fills in memory payloads for candidates that only the graph
// reached. Candidates that can't be loaded are dropped; the error says
// whether a store failure caused it.
func (e *Engine) hydrate(ctx context.Context, ownerID string, cands map[string]*candidate) error {
	var missing []string
	for id, c := range cands {
		if c.mem == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)

	mems, err := e.loadMemories(ctx, ownerID, missing)
	for _, m := range mems {
		if c, ok := cands[m.ID]; ok {
			c.mem = m
		}
	}
	for _, id := range missing {
		if cands[id].mem == nil {
			delete(cands, id)
		}
	}
	return err
}

// loadMemories reads through the memory cache, falling back from the graph
// store to the vector store for IDs the graph doesn't have.
func (e *Engine) loadMemories(ctx context.Context, ownerID string, ids []string) ([]*memory.Memory, error) {
	load := func(ctx context.Context, ids []string) ([]*memory.Memory, error) {
		gctx, cancel := context.WithTimeout(ctx, e.cfg.GraphTimeout)
		defer cancel()

		found, gerr := e.graph.GetMemories(gctx, ownerID, ids)
		if gerr != nil {
			found = nil
		}
		if len(found) == len(ids) {
			return found, nil
		}

		have := make(map[string]struct{}, len(found))
		for _, m := range found {
			have[m.ID] = struct{}{}
		}
		var rest []string
		for _, id := range ids {
			if _, ok := have[id]; !ok {
				rest = append(rest, id)
			}
		}

		vctx, vcancel := context.WithTimeout(ctx, e.cfg.VectorTimeout)
		defer vcancel()
		docs, verr := e.vectors.Get(vctx, ownerID, rest)
		for _, d := range docs {
			if d.Memory != nil {
				found = append(found, d.Memory)
			}
		}
		if len(found) < len(ids) && (gerr != nil || verr != nil) {
			return found, memory.AdapterError("load memories", errors.Join(gerr, verr))
		}
		return found, nil
	}

	if e.cache == nil {
		return load(ctx, ids)
	}
	return e.cache.GetOrLoadMemories(ctx, ownerID, ids, load)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
