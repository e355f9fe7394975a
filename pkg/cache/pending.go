package cache

import (
	"cmp"
	"slices"
	"time"
)

// PendingState says who owns a pending graph write.
type PendingState string

const (
	// PendingRetrying memories have a background retry queued or running.
	PendingRetrying PendingState = "retrying"

	// PendingFlagged memories ran out of retries and wait on the sweep.
	PendingFlagged PendingState = "flagged"
)

// Pending records a memory whose vector write committed but whose graph
// write has not landed.
type Pending struct {
	OwnerID  string       `json:"owner_id"`
	MemoryID string       `json:"memory_id"`
	Token    string       `json:"token"`
	State    PendingState `json:"state"`
	MarkedAt time.Time    `json:"marked_at"`
}

// MarkGraphIncomplete records a pending graph write. An empty state means
// PendingFlagged.
func (c *Cache) MarkGraphIncomplete(p Pending) {
	if p.MarkedAt.IsZero() {
		p.MarkedAt = c.now()
	}
	if p.State == "" {
		p.State = PendingFlagged
	}
	c.pendingMu.Lock()
	c.pending[p.MemoryID] = p
	c.pendingMu.Unlock()
}

// ClearGraphIncomplete removes the flag once the graph write lands.
func (c *Cache) ClearGraphIncomplete(memoryID string) {
	c.pendingMu.Lock()
	delete(c.pending, memoryID)
	c.pendingMu.Unlock()
}

// GraphIncomplete reports whether the memory is flagged.
func (c *Cache) GraphIncomplete(memoryID string) bool {
	c.pendingMu.RLock()
	_, ok := c.pending[memoryID]
	c.pendingMu.RUnlock()
	return ok
}

// PendingState returns the state of a pending memory, or "" when its graph
// write has landed.
func (c *Cache) PendingState(memoryID string) PendingState {
	c.pendingMu.RLock()
	defer c.pendingMu.RUnlock()
	return c.pending[memoryID].State
}

// Pending lists pending memories, oldest first.
func (c *Cache) Pending() []Pending {
	c.pendingMu.RLock()
	out := make([]Pending, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	c.pendingMu.RUnlock()

	slices.SortFunc(out, func(a, b Pending) int {
		return cmp.Or(a.MarkedAt.Compare(b.MarkedAt), cmp.Compare(a.MemoryID, b.MemoryID))
	})
	return out
}
