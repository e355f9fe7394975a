// Package cache is the engine's read-through memory cache: a striped LRU
// with a hard entry ceiling and a TTL, holding retrieval results per owner
// and raw memories by ID. It also keeps the small set of memories whose
// graph write never landed, which is not subject to eviction.
package cache

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/mnemo/pkg/logger"
)

const (
	DefaultCapacity        = 2000
	DefaultStripes         = 16
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Config configures a Cache.
type Config struct {
	// Capacity is the total entry ceiling, split evenly across stripes.
	Capacity int
	Stripes  int
	TTL      time.Duration

	// CleanupInterval is how often expired entries are swept. Zero uses
	// the default; a negative value disables the background sweep.
	CleanupInterval time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

type kind uint8

const (
	kindRetrieval kind = iota
	kindMemory
)

type key struct {
	kind  kind
	owner string
	id    string
}

type entry struct {
	value   any
	expires time.Time
}

type stripe struct {
	mu  sync.Mutex
	lru *simplelru.LRU[key, entry]
}

// Stats are cumulative lookup counters.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Pending int   `json:"pending"`
}

// Cache is safe for concurrent use.
type Cache struct {
	stripes []*stripe
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger

	loads singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	pendingMu sync.RWMutex
	pending   map[string]Pending

	// gens counts InvalidateOwner calls per owner. A load only stores its
	// result if the owner's generation did not move while it ran.
	genMu sync.RWMutex
	gens  map[string]uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache and starts its expiry sweep. Call Close to stop it.
func New(cfg Config, log *slog.Logger) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Stripes <= 0 {
		cfg.Stripes = DefaultStripes
	}
	if cfg.Stripes > cfg.Capacity {
		cfg.Stripes = cfg.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	c := &Cache{
		stripes: make([]*stripe, cfg.Stripes),
		ttl:     cfg.TTL,
		now:     cfg.Clock,
		log:     logger.OrNop(log),
		pending: make(map[string]Pending),
		gens:    make(map[string]uint64),
	}

	// The ceiling is global: stripe sizes sum to exactly Capacity.
	per, extra := cfg.Capacity/cfg.Stripes, cfg.Capacity%cfg.Stripes
	for i := range c.stripes {
		size := per
		if i < extra {
			size++
		}
		lru, _ := simplelru.NewLRU[key, entry](size, nil) // size is always > 0
		c.stripes[i] = &stripe{lru: lru}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if cfg.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(ctx, cfg.CleanupInterval)
	}

	return c
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) stripeFor(k key) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(k.kind)})
	_, _ = h.Write([]byte(k.owner))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.id))
	return c.stripes[h.Sum32()%uint32(len(c.stripes))]
}

func (c *Cache) get(k key) (any, bool) {
	s := c.stripeFor(k)
	s.mu.Lock()
	e, ok := s.lru.Get(k)
	if ok && !c.now().Before(e.expires) {
		s.lru.Remove(k)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

func (c *Cache) put(k key, v any) {
	s := c.stripeFor(k)
	s.mu.Lock()
	s.lru.Add(k, entry{value: v, expires: c.now().Add(c.ttl)})
	s.mu.Unlock()
}

func (c *Cache) remove(k key) {
	s := c.stripeFor(k)
	s.mu.Lock()
	s.lru.Remove(k)
	s.mu.Unlock()
}

// removeWhere drops every key matching fn, one stripe at a time.
func (c *Cache) removeWhere(fn func(key) bool) int {
	n := 0
	for _, s := range c.stripes {
		s.mu.Lock()
		for _, k := range s.lru.Keys() {
			if fn(k) {
				s.lru.Remove(k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Len returns the number of live and not yet swept entries.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.stripes {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Stats snapshots the cache counters.
func (c *Cache) Stats() Stats {
	c.pendingMu.RLock()
	pending := len(c.pending)
	c.pendingMu.RUnlock()

	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Pending: pending,
	}
}

// Purge drops every cached entry. Pending graph writes are kept.
func (c *Cache) Purge() {
	for _, s := range c.stripes {
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}
}

// RemoveExpired sweeps entries past their TTL and returns how many went.
func (c *Cache) RemoveExpired() int {
	now := c.now()
	n := 0
	for _, s := range c.stripes {
		s.mu.Lock()
		for _, k := range s.lru.Keys() {
			if e, ok := s.lru.Peek(k); ok && !now.Before(e.expires) {
				s.lru.Remove(k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

func (c *Cache) cleanupLoop(ctx context.Context, every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.RemoveExpired(); n > 0 {
				c.log.Debug("cache expired entries removed", "count", n)
			}
		}
	}
}
