// Package eventstream publishes memory lifecycle events to an external
// stream so other services can react to new knowledge.
package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *MemoryEvent) error
	Close() error
}
