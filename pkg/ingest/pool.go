package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/mnemo/pkg/graph"
)

// retryJob is one graph write that failed on the ingest path.
type retryJob struct {
	batch  *graph.Batch
	queued time.Time
}

// pool runs graph write retries off the ingest path.
type pool struct {
	queue  chan retryJob
	run    func(context.Context, retryJob)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed and the send side of queue.
	mu     sync.Mutex
	closed bool
}

func newPool(workers, queueSize uint, run func(context.Context, retryJob), log *slog.Logger) (*pool, error) {
	if workers > uint(math.MaxInt) {
		return nil, fmt.Errorf("workers %d exceeds max int", workers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{
		queue:  make(chan retryJob, queueSize),
		run:    run,
		ctx:    ctx,
		cancel: cancel,
		logger: log,
	}

	p.wg.Add(int(workers))
	for i := range workers {
		go p.worker(i)
	}

	return p, nil
}

// enqueue submits a job without blocking. It returns false when the queue is
// full or the pool is closed, in which case the job is dropped.
func (p *pool) enqueue(job retryJob) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Warn("graph retry not queued, pool closed",
			"owner_id", job.batch.OwnerID,
			"memory_id", job.batch.Memory.ID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("graph retry queued",
			"owner_id", job.batch.OwnerID,
			"memory_id", job.batch.Memory.ID,
		)
		return true
	default:
		p.logger.Error("graph retry not queued, queue full",
			"owner_id", job.batch.OwnerID,
			"memory_id", job.batch.Memory.ID,
		)
		return false
	}
}

// close cancels in-flight backoff waits, then drains the queue. Drained jobs
// run once more against a cancelled context, so they end up flagged rather
// than lost.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("graph retry worker started", "worker_id", id)

	for job := range p.queue {
		p.run(p.ctx, job)
	}

	p.logger.Debug("graph retry worker stopped", "worker_id", id)
}
