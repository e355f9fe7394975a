package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
)

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MemoryEvent

	// Err is returned from Publish when set.
	Err    error
	Closed bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns the published events of the given type, or all when
// eventType is empty.
func (p *MockPublisher) Events(eventType string) []*eventstream.MemoryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*eventstream.MemoryEvent
	for _, e := range p.events {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}
