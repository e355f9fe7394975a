// Package ingest is the ingestion coordinator. It writes each memory to the
// vector index first and to the knowledge graph second. The vector write
// decides success; a failed graph write is retried in the background and,
// once retries run out, handed to the reconciliation sweep. The memory is
// reported as pending from the first failure on. Nothing is rolled back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/cache"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

const publishTimeout = 5 * time.Second

// Coordinator owns the write path of the memory engine.
type Coordinator struct {
	cfg     Config
	vectors vector.Driver
	graph   graph.Driver
	client  embeddings.Processor
	cache   *cache.Cache
	events  eventstream.Publisher
	pool    *pool
	log     *slog.Logger

	ownsCache bool

	decayMu   sync.Mutex
	lastDecay time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewCoordinator wires the coordinator and starts its retry workers and
// sweep. client may be nil, in which case Capture fails with
// memory.ErrModelUnavailable. A nil cache gets a private default cache and
// a nil publisher drops events.
func NewCoordinator(
	cfg Config,
	vectors vector.Driver,
	g graph.Driver,
	client embeddings.Client,
	c *cache.Cache,
	events eventstream.Publisher,
) (*Coordinator, error) {
	if vectors == nil || g == nil {
		return nil, errors.New("ingest: vector and graph drivers are required")
	}
	cfg = cfg.withDefaults()
	log := logger.OrNop(cfg.Logger)

	co := &Coordinator{
		cfg:     cfg,
		vectors: vectors,
		graph:   g,
		cache:   c,
		events:  events,
		log:     log,
	}
	if client != nil {
		co.client = embeddings.WithRetry(client, embeddings.RetryConfig{
			Attempts:       cfg.ModelAttempts,
			InitialBackoff: cfg.RetryInitial,
			MaxBackoff:     cfg.RetryMax,
			CallTimeout:    cfg.EmbeddingTimeout,
			Logger:         log,
		})
	}
	if co.cache == nil {
		co.cache = cache.New(cache.Config{}, log)
		co.ownsCache = true
	}
	if co.events == nil {
		co.events = nop.NewPublisher()
	}

	p, err := newPool(cfg.Workers, cfg.QueueSize, co.retryGraphWrite, log)
	if err != nil {
		return nil, err
	}
	co.pool = p

	ctx, cancel := context.WithCancel(context.Background())
	co.cancel = cancel
	if cfg.SweepInterval > 0 {
		co.wg.Add(1)
		go co.sweepLoop(ctx, cfg.SweepInterval)
	}

	return co, nil
}

// Ingest stores m and returns its ID. It succeeds once the vector write
// commits, or, for a memory without an embedding, once the graph write
// commits.
func (c *Coordinator) Ingest(ctx context.Context, m memory.Memory) (string, error) {
	if err := m.Validate(c.cfg.Dimensions); err != nil {
		return "", err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.cfg.Clock().UTC()
	}
	if m.ContentType == "" {
		m.ContentType = memory.ContentText
	}
	m.Entities = memory.UniqueRefs(m.Entities)
	m.Tags = memory.NormalizeTags(m.Tags)

	log := c.log.With("owner_id", m.OwnerID, "memory_id", m.ID)

	if m.Embedding != nil {
		if err := c.writeVector(ctx, &m); err != nil {
			log.Error("vector write failed", "error", err)
			return "", err
		}
	}

	batch := graph.BuildBatch(&m)
	graphErr := c.writeGraph(ctx, batch)
	switch {
	case graphErr == nil:
	case m.Embedding == nil:
		log.Error("graph write failed for memory without embedding", "error", graphErr)
		return "", graphErr
	default:
		log.Warn("graph write failed, retrying in background", "error", graphErr)
		c.markPending(batch, cache.PendingRetrying)
		if !c.pool.enqueue(retryJob{batch: batch, queued: c.cfg.Clock()}) {
			c.markPending(batch, cache.PendingFlagged)
		}
	}

	c.invalidate(m.OwnerID, m.ID)
	c.publish(ctx, eventstream.EventTypeMemoryIngested, &m, eventstream.GraphMeta{
		Complete: graphErr == nil,
		Token:    batch.Token,
	})

	log.Debug("memory ingested",
		"entities", len(m.Entities),
		"has_vector", m.Embedding != nil,
		"graph_complete", graphErr == nil,
	)
	return m.ID, nil
}

// Capture runs a raw input through the model and ingests the result. Model
// failures are retried with backoff before giving up.
func (c *Coordinator) Capture(ctx context.Context, in embeddings.Input) (string, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return "", fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" && strings.TrimSpace(in.MediaRef) == "" {
		return "", fmt.Errorf("%w: content or media ref is required", memory.ErrInvalidInput)
	}
	if in.ContentType != "" && !in.ContentType.Valid() {
		return "", fmt.Errorf("%w: unknown content type %q", memory.ErrInvalidInput, in.ContentType)
	}
	if c.client == nil {
		return "", fmt.Errorf("capture: %w: no model client configured", memory.ErrModelUnavailable)
	}

	res, err := c.client.Process(ctx, in)
	if err != nil {
		c.log.Warn("capture failed", "owner_id", in.OwnerID, "error", err)
		return "", err
	}
	if err := res.Validate(c.cfg.Dimensions); err != nil {
		c.log.Warn("capture result rejected", "owner_id", in.OwnerID, "error", err)
		return "", err
	}

	return c.Ingest(ctx, res.Memory(in))
}

// Delete removes a memory from both stores. It returns memory.ErrNotFound
// when neither store knows the memory.
func (c *Coordinator) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner id and memory id are required", memory.ErrInvalidInput)
	}

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorTimeout)
	docs, err := c.vectors.Get(vctx, ownerID, []string{id})
	if err == nil && len(docs) > 0 {
		err = c.vectors.Delete(vctx, ownerID, []string{id})
	}
	cancel()
	if err != nil {
		return memory.AdapterError("vector delete", err)
	}

	gctx, cancel := context.WithTimeout(ctx, c.cfg.GraphTimeout)
	defer cancel()
	nodes, err := c.graph.GetMemories(gctx, ownerID, []string{id})
	if err == nil && len(nodes) > 0 {
		err = c.graph.DeleteMemory(gctx, ownerID, id)
	}
	if err != nil {
		return memory.AdapterError("graph delete", err)
	}

	if len(docs) == 0 && len(nodes) == 0 {
		return fmt.Errorf("%s: %w", id, memory.ErrNotFound)
	}

	c.cache.ClearGraphIncomplete(id)
	c.invalidate(ownerID, id)

	deleted := &memory.Memory{ID: id, OwnerID: ownerID}
	switch {
	case len(docs) > 0 && docs[0].Memory != nil:
		deleted = docs[0].Memory
	case len(nodes) > 0:
		deleted = nodes[0]
	}
	c.publish(ctx, eventstream.EventTypeMemoryDeleted, deleted, eventstream.GraphMeta{Complete: true})

	c.log.Debug("memory deleted", "owner_id", ownerID, "memory_id", id)
	return nil
}

// GraphIncomplete reports whether id's graph write has not landed yet,
// whether a retry is still queued or the sweep owns it.
func (c *Coordinator) GraphIncomplete(id string) bool {
	return c.cache.GraphIncomplete(id)
}

// PendingState reports who owns id's graph write, or "" once it landed.
func (c *Coordinator) PendingState(id string) cache.PendingState {
	return c.cache.PendingState(id)
}

// PendingEntries lists memories whose graph write has not landed, oldest
// first.
func (c *Coordinator) PendingEntries() []cache.Pending {
	return c.cache.Pending()
}

// Pending lists the IDs of memories whose graph write has not landed,
// oldest first.
func (c *Coordinator) Pending() []string {
	pending := c.cache.Pending()
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.MemoryID
	}
	return ids
}

// Close stops the sweep and drains the retry queue. Retries cut short are
// flagged, as are graph failures on ingests after Close. It does not close
// the drivers.
func (c *Coordinator) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.pool.close()
		if c.ownsCache {
			c.cache.Close()
		}
	})
	return nil
}

func (c *Coordinator) writeVector(ctx context.Context, m *memory.Memory) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.VectorTimeout)
	defer cancel()

	doc := vector.Document{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Embedding: m.Embedding,
		Memory:    m,
	}
	return memory.AdapterError("vector upsert", c.vectors.Upsert(ctx, []vector.Document{doc}))
}

func (c *Coordinator) writeGraph(ctx context.Context, b *graph.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.GraphTimeout)
	defer cancel()
	return memory.AdapterError("graph write", c.graph.Write(ctx, b))
}

// retryGraphWrite is the pool's job handler. The batch token makes a retry
// of a write that did land a no-op.
func (c *Coordinator) retryGraphWrite(ctx context.Context, job retryJob) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxInterval = c.cfg.RetryMax
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	log := c.log.With("owner_id", job.batch.OwnerID, "memory_id", job.batch.Memory.ID)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.writeGraph(ctx, job.batch)
		if err != nil && !memory.Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("graph retry failed", "attempt", attempt, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.GraphRetryAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		log.Warn("graph retries exhausted, flagging memory", "attempts", attempt, "error", err)
		c.markPending(job.batch, cache.PendingFlagged)
		return
	}

	log.Info("graph write recovered", "attempts", attempt, "queued_for", c.cfg.Clock().Sub(job.queued))
	c.cache.ClearGraphIncomplete(job.batch.Memory.ID)
	c.cache.InvalidateOwner(job.batch.OwnerID)
	c.publish(ctx, eventstream.EventTypeGraphReconciled, job.batch.Memory, eventstream.GraphMeta{
		Complete: true,
		Token:    job.batch.Token,
	})
}

func (c *Coordinator) markPending(b *graph.Batch, state cache.PendingState) {
	c.cache.MarkGraphIncomplete(cache.Pending{
		OwnerID:  b.OwnerID,
		MemoryID: b.Memory.ID,
		Token:    b.Token,
		State:    state,
	})
}

func (c *Coordinator) invalidate(ownerID, id string) {
	c.cache.InvalidateMemory(ownerID, id)
	if n := c.cache.InvalidateOwner(ownerID); n > 0 {
		c.log.Debug("retrieval cache invalidated", "owner_id", ownerID, "entries", n)
	}
}

// publish is best effort; a stream outage never fails a write.
func (c *Coordinator) publish(ctx context.Context, eventType string, m *memory.Memory, g eventstream.GraphMeta) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ev := eventstream.NewMemoryEvent(eventType, m, g, c.cfg.Clock())
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warn("memory event not published",
			"event_type", eventType,
			"owner_id", m.OwnerID,
			"memory_id", m.ID,
			"error", err,
		)
	}
}
