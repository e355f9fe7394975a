package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/vector"
)

// FailingVectorDriver wraps a real driver and injects failures on demand.
type FailingVectorDriver struct {
	vector.Driver

	mu             sync.Mutex
	upsertFailures int
	upsertErr      error
	queryErr       error
	upserts        int
	queries        int
}

func NewFailingVectorDriver(inner vector.Driver) *FailingVectorDriver {
	return &FailingVectorDriver{Driver: inner}
}

// FailUpserts makes the next n Upsert calls return err.
func (f *FailingVectorDriver) FailUpserts(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertFailures = n
	f.upsertErr = err
}

// FailQueries makes every Query return err until called with nil.
func (f *FailingVectorDriver) FailQueries(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// Upserts and Queries count calls, failed ones included.
func (f *FailingVectorDriver) Upserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *FailingVectorDriver) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func (f *FailingVectorDriver) Upsert(ctx context.Context, docs []vector.Document) error {
	f.mu.Lock()
	f.upserts++
	if f.upsertFailures > 0 {
		f.upsertFailures--
		err := f.upsertErr
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.Driver.Upsert(ctx, docs)
}

func (f *FailingVectorDriver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	f.mu.Lock()
	f.queries++
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Driver.Query(ctx, embedding, topK, filter)
}
