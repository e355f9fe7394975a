package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Fingerprint hashes any JSON-encodable description of a query into a
// stable cache key.
func Fingerprint(parts ...any) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		// Values that can't be encoded still get a distinct, if coarser, key.
		if err := enc.Encode(p); err != nil {
			_, _ = h.Write([]byte(err.Error()))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetRetrieval returns a cached retrieval result. The value is shared;
// callers must treat it as read-only.
func (c *Cache) GetRetrieval(ownerID, fingerprint string) (any, bool) {
	return c.get(key{kind: kindRetrieval, owner: ownerID, id: fingerprint})
}

// PutRetrieval caches a retrieval result.
func (c *Cache) PutRetrieval(ownerID, fingerprint string, v any) {
	c.put(key{kind: kindRetrieval, owner: ownerID, id: fingerprint}, v)
}

// RetrievalLoader computes a result on a miss. cacheable=false returns the
// value without storing it.
type RetrievalLoader func(ctx context.Context) (v any, cacheable bool, err error)

// GetOrLoadRetrieval is the read-through path for retrieval results.
// Concurrent misses on the same key share one load. A load that overlaps an
// InvalidateOwner for the same owner returns its value but does not store it,
// and callers arriving after the invalidation start a fresh load.
func (c *Cache) GetOrLoadRetrieval(ctx context.Context, ownerID, fingerprint string, load RetrievalLoader) (any, bool, error) {
	if v, ok := c.GetRetrieval(ownerID, fingerprint); ok {
		return v, true, nil
	}

	gen := c.generation(ownerID)
	flight := "ret\x00" + ownerID + "\x00" + strconv.FormatUint(gen, 10) + "\x00" + fingerprint
	v, err, _ := c.loads.Do(flight, func() (any, error) {
		v, cacheable, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.putRetrievalAt(ownerID, fingerprint, gen, v)
		}
		return v, nil
	})
	return v, false, err
}

func (c *Cache) generation(ownerID string) uint64 {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	return c.gens[ownerID]
}

// putRetrievalAt stores v only while the owner is still at generation gen.
// genMu is held across the put so an InvalidateOwner either bumps first
// (and the put is skipped) or removes the entry afterwards.
func (c *Cache) putRetrievalAt(ownerID, fingerprint string, gen uint64, v any) bool {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	if c.gens[ownerID] != gen {
		c.log.Debug("cache dropped stale retrieval result", "owner_id", ownerID)
		return false
	}
	c.PutRetrieval(ownerID, fingerprint, v)
	return true
}

// InvalidateOwner drops every retrieval result cached for the owner and
// discards results of loads still in flight for it.
func (c *Cache) InvalidateOwner(ownerID string) int {
	c.genMu.Lock()
	c.gens[ownerID]++
	c.genMu.Unlock()

	n := c.removeWhere(func(k key) bool {
		return k.kind == kindRetrieval && k.owner == ownerID
	})
	if n > 0 {
		c.log.Debug("cache retrieval entries invalidated", "owner_id", ownerID, "count", n)
	}
	return n
}
