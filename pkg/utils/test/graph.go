package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// FailingGraphDriver wraps a real graph driver and injects failures.
type FailingGraphDriver struct {
	graph.Driver

	mu            sync.Mutex
	writeFailures int
	writeErr      error
	readErr       error
	getErr        error
	stallTop      bool
	stallAfter    int
	writes        int
	traversals    int
}

func NewFailingGraphDriver(inner graph.Driver) *FailingGraphDriver {
	return &FailingGraphDriver{Driver: inner}
}

// FailWrites makes the next n Write calls return err. n < 0 fails forever.
func (f *FailingGraphDriver) FailWrites(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeFailures = n
	f.writeErr = err
}

// FailReads makes every read (FindEntities, Traverse, GetMemories, Related,
// TopEntities, RecentMemories) return err until called with nil.
func (f *FailingGraphDriver) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// FailGetMemories makes GetMemories alone return err until called with nil.
func (f *FailingGraphDriver) FailGetMemories(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// StallTopEntities makes TopEntities block until the context ends.
func (f *FailingGraphDriver) StallTopEntities(stall bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stallTop = stall
}

// StallAfterHop makes Traverse walk at most hops hops, then block until
// the context ends and return what it found with a timeout. Zero turns it
// off.
func (f *FailingGraphDriver) StallAfterHop(hops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stallAfter = hops
}

// Writes is the number of Write calls, failed ones included.
func (f *FailingGraphDriver) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Traversals is the number of Traverse calls.
func (f *FailingGraphDriver) Traversals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.traversals
}

func (f *FailingGraphDriver) readFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readErr
}

func (f *FailingGraphDriver) Write(ctx context.Context, b *graph.Batch) error {
	f.mu.Lock()
	f.writes++
	if f.writeFailures != 0 {
		if f.writeFailures > 0 {
			f.writeFailures--
		}
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.Driver.Write(ctx, b)
}

func (f *FailingGraphDriver) Traverse(ctx context.Context, req graph.TraverseRequest) ([]graph.Reach, error) {
	f.mu.Lock()
	f.traversals++
	stall := f.stallAfter
	f.mu.Unlock()

	if err := f.readFailure(); err != nil {
		return nil, err
	}
	if stall <= 0 || req.MaxDepth <= stall {
		return f.Driver.Traverse(ctx, req)
	}

	short := req
	short.MaxDepth = stall
	reaches, err := f.Driver.Traverse(ctx, short)
	if err != nil {
		return reaches, err
	}
	<-ctx.Done()
	return reaches, memory.AdapterError("graph traverse", ctx.Err())
}

func (f *FailingGraphDriver) FindEntities(ctx context.Context, ownerID string, names []string) ([]memory.Entity, error) {
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	return f.Driver.FindEntities(ctx, ownerID, names)
}

func (f *FailingGraphDriver) GetMemories(ctx context.Context, ownerID string, ids []string) ([]*memory.Memory, error) {
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gerr := f.getErr
	f.mu.Unlock()
	if gerr != nil {
		return nil, gerr
	}
	// SQL-backed drivers refuse to run on a finished context.
	if err := ctx.Err(); err != nil {
		return nil, memory.AdapterError("graph get memories", err)
	}
	return f.Driver.GetMemories(ctx, ownerID, ids)
}

func (f *FailingGraphDriver) Related(ctx context.Context, ownerID, memoryID string, limit int) ([]graph.Related, error) {
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	return f.Driver.Related(ctx, ownerID, memoryID, limit)
}

func (f *FailingGraphDriver) TopEntities(ctx context.Context, ownerID string, since time.Time, limit int) ([]graph.EntityCount, error) {
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	stall := f.stallTop
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, memory.AdapterError("graph top entities", ctx.Err())
	}
	return f.Driver.TopEntities(ctx, ownerID, since, limit)
}

func (f *FailingGraphDriver) RecentMemories(ctx context.Context, ownerID string, since time.Time, limit int) ([]*memory.Memory, error) {
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	return f.Driver.RecentMemories(ctx, ownerID, since, limit)
}
