package cache

import (
	"context"
	"slices"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// GetMemory returns a copy of a cached memory.
func (c *Cache) GetMemory(ownerID, id string) (*memory.Memory, bool) {
	v, ok := c.get(key{kind: kindMemory, owner: ownerID, id: id})
	if !ok {
		return nil, false
	}
	return v.(*memory.Memory).Clone(), true
}

// PutMemory caches a copy of m.
func (c *Cache) PutMemory(m *memory.Memory) {
	if m == nil || m.ID == "" {
		return
	}
	c.put(key{kind: kindMemory, owner: m.OwnerID, id: m.ID}, m.Clone())
}

// InvalidateMemory drops one memory entry.
func (c *Cache) InvalidateMemory(ownerID, id string) {
	c.remove(key{kind: kindMemory, owner: ownerID, id: id})
}

// MemoryLoader fetches memories the cache doesn't hold.
type MemoryLoader func(ctx context.Context, ids []string) ([]*memory.Memory, error)

// GetOrLoadMemories returns the owner's memories for ids in request order,
// loading misses through load. Concurrent loads of the same miss set are
// collapsed into one call. IDs the loader doesn't return are skipped. When
// the loader fails, the cached hits are still returned with its error.
func (c *Cache) GetOrLoadMemories(ctx context.Context, ownerID string, ids []string, load MemoryLoader) ([]*memory.Memory, error) {
	found := make(map[string]*memory.Memory, len(ids))
	var missing []string
	for _, id := range ids {
		if _, dup := found[id]; dup {
			continue
		}
		if m, ok := c.GetMemory(ownerID, id); ok {
			found[id] = m
			continue
		}
		if !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}

	var loadErr error
	if len(missing) > 0 {
		sorted := slices.Clone(missing)
		slices.Sort(sorted)
		flight := "mem\x00" + ownerID + "\x00" + strings.Join(sorted, "\x00")

		var v any
		v, loadErr, _ = c.loads.Do(flight, func() (any, error) {
			loaded, err := load(ctx, missing)
			for _, m := range loaded {
				if m != nil && m.OwnerID == ownerID {
					c.PutMemory(m)
				}
			}
			return loaded, err
		})
		loaded, _ := v.([]*memory.Memory)
		for _, m := range loaded {
			if m != nil && m.OwnerID == ownerID {
				found[m.ID] = m.Clone()
			}
		}
	}

	out := make([]*memory.Memory, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, id := range ids {
		m, ok := found[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, m)
	}
	return out, loadErr
}
