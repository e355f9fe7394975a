package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/embeddings/heuristic"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

// MockClient is a test embeddings.Client. Embeddings come from the embedded
// MockEmbedder, entities from Entities when present and the heuristic
// extractor otherwise. FailTimes makes the next n calls fail.
type MockClient struct {
	*MockEmbedder

	// Entities overrides extraction for an exact text.
	Entities map[string][]memory.EntityRef

	// EmbedErr, when set, fails every Embed call.
	EmbedErr error

	mu       sync.Mutex
	calls    int
	failures int
	failErr  error
}

func NewMockClient() *MockClient {
	return &MockClient{
		MockEmbedder: NewMockEmbedder(),
		Entities:     make(map[string][]memory.EntityRef),
	}
}

// FailTimes makes the next n calls return err.
func (m *MockClient) FailTimes(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

// Calls is the number of calls made so far.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) call() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return m.failErr
	}
	return nil
}

func (m *MockClient) Process(ctx context.Context, in embeddings.Input) (*embeddings.Result, error) {
	if err := m.call(); err != nil {
		return nil, err
	}
	refs, _ := m.extract(ctx, in.Content)
	emb, err := m.embed(ctx, in.Content)
	if err != nil {
		return nil, err
	}
	return &embeddings.Result{
		Text:      in.Content,
		Entities:  refs,
		Sentiment: heuristic.Sentiment(in.Content),
		Embedding: emb,
	}, nil
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := m.call(); err != nil {
		return nil, err
	}
	return m.embed(ctx, text)
}

func (m *MockClient) Extract(ctx context.Context, text string) ([]memory.EntityRef, error) {
	if err := m.call(); err != nil {
		return nil, err
	}
	return m.extract(ctx, text)
}

func (m *MockClient) embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return m.MockEmbedder.Embed(ctx, text)
}

func (m *MockClient) extract(ctx context.Context, text string) ([]memory.EntityRef, error) {
	if refs, ok := m.Entities[text]; ok {
		return refs, nil
	}
	return heuristic.Extract(ctx, text)
}

var _ embeddings.Client = (*MockClient)(nil)
