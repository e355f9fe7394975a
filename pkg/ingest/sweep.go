package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/papercomputeco/mnemo/pkg/cache"
	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	// Reconciled memories had their graph write land this pass.
	Reconciled int `json:"reconciled"`

	// Failed memories are still flagged.
	Failed int `json:"failed"`

	// Missing memories were deleted before the sweep got to them and have
	// been unflagged.
	Missing int `json:"missing"`

	// Decayed is the number of co-occurs edges scaled down.
	Decayed int64 `json:"decayed"`
}

// Sweep retries the graph write of every flagged memory, then applies edge
// decay if it is due. Each memory is rebuilt from the vector store and
// written under its original batch token. Memories whose background retry
// is still running are left to it.
func (c *Coordinator) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	var errs []error

	for _, p := range c.cache.Pending() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if p.State == cache.PendingRetrying {
			continue
		}
		log := c.log.With("owner_id", p.OwnerID, "memory_id", p.MemoryID)

		vctx, cancel := context.WithTimeout(ctx, c.cfg.VectorTimeout)
		docs, err := c.vectors.Get(vctx, p.OwnerID, []string{p.MemoryID})
		cancel()
		if err != nil {
			log.Warn("sweep could not load memory", "error", err)
			stats.Failed++
			continue
		}
		if len(docs) == 0 || docs[0].Memory == nil {
			log.Debug("flagged memory no longer exists")
			c.cache.ClearGraphIncomplete(p.MemoryID)
			stats.Missing++
			continue
		}

		m := docs[0].Memory.Clone()
		m.ID, m.OwnerID = p.MemoryID, p.OwnerID
		batch := graph.BuildBatch(m)
		batch.Token = p.Token

		if err := c.writeGraph(ctx, batch); err != nil {
			log.Warn("sweep graph write failed", "error", err)
			stats.Failed++
			continue
		}

		c.cache.ClearGraphIncomplete(p.MemoryID)
		c.cache.InvalidateOwner(p.OwnerID)
		c.publish(ctx, eventstream.EventTypeGraphReconciled, m, eventstream.GraphMeta{
			Complete: true,
			Token:    p.Token,
		})
		stats.Reconciled++
	}

	n, err := c.decay(ctx)
	stats.Decayed = n
	if err != nil {
		errs = append(errs, err)
	}

	if stats.Reconciled > 0 || stats.Failed > 0 || stats.Decayed > 0 {
		c.log.Info("reconciliation sweep finished",
			"reconciled", stats.Reconciled,
			"failed", stats.Failed,
			"missing", stats.Missing,
			"decayed", stats.Decayed,
		)
	}
	return stats, errors.Join(errs...)
}

// decay scales stale co-occurs edges once per EdgeDecayInterval.
func (c *Coordinator) decay(ctx context.Context) (int64, error) {
	if c.cfg.EdgeDecayFactor <= 0 || c.cfg.EdgeDecayFactor >= 1 {
		return 0, nil
	}

	c.decayMu.Lock()
	defer c.decayMu.Unlock()

	now := c.cfg.Clock()
	if !c.lastDecay.IsZero() && now.Sub(c.lastDecay) < c.cfg.EdgeDecayInterval {
		return 0, nil
	}

	gctx, cancel := context.WithTimeout(ctx, c.cfg.GraphTimeout)
	defer cancel()
	n, err := c.graph.Decay(gctx, c.cfg.EdgeDecayFactor, now.Add(-c.cfg.EdgeDecayAfter))
	err = memory.AdapterError("graph decay", err)
	if err != nil {
		c.log.Warn("edge decay failed", "error", err)
		return 0, err
	}
	c.lastDecay = now
	return n, nil
}

func (c *Coordinator) sweepLoop(ctx context.Context, every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("reconciliation sweep failed", "error", err)
			}
		}
	}
}
