package retrieval

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Breakdown shows how an item's score was composed.
type Breakdown struct {
	// Vector is the cosine similarity, floored at zero.
	Vector float64 `json:"vector"`

	// Graph is 1/(1+hops) for memories the traversal reached.
	Graph float64 `json:"graph"`

	// Temporal is exp(-lambda * ageDays).
	Temporal float64 `json:"temporal"`

	Hops       int  `json:"hops,omitempty"`
	FromVector bool `json:"from_vector"`
	FromGraph  bool `json:"from_graph"`
}

// Item is one memory in an assembled context.
type Item struct {
	Memory    *memory.Memory `json:"memory"`
	Score     float64        `json:"score"`
	Breakdown Breakdown      `json:"breakdown"`
	Tokens    int            `json:"tokens"`
}

// candidate accumulates stage evidence for one memory.
type candidate struct {
	mem       *memory.Memory
	breakdown Breakdown
}

func (c *candidate) addVector(score float32) {
	s := math.Max(0, float64(score))
	if !c.breakdown.FromVector || s > c.breakdown.Vector {
		c.breakdown.Vector = s
	}
	c.breakdown.FromVector = true
}

func (c *candidate) addGraph(hops int) {
	if c.breakdown.FromGraph && hops >= c.breakdown.Hops {
		return
	}
	c.breakdown.FromGraph = true
	c.breakdown.Hops = hops
	c.breakdown.Graph = 1 / (1 + float64(hops))
}

// Temporal is the recency multiplier for a memory created at createdAt.
// Future timestamps count as age zero.
func Temporal(createdAt, now time.Time, lambda float64) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-lambda * ageDays)
}

// Fuse is the weighted sum of the stage scores.
func Fuse(b Breakdown, w Weights) float64 {
	return w.Vector*b.Vector + w.Graph*b.Graph + w.Temporal*b.Temporal
}

// rank scores the candidates and orders them by fused score, newest first
// on ties, then by ID. The result is fully determined by its inputs.
func rank(cands map[string]*candidate, now time.Time, lambda float64, w Weights) []Item {
	items := make([]Item, 0, len(cands))
	for _, c := range cands {
		if c.mem == nil {
			continue
		}
		b := c.breakdown
		b.Temporal = Temporal(c.mem.CreatedAt, now, lambda)
		items = append(items, Item{Memory: c.mem, Score: Fuse(b, w), Breakdown: b})
	}

	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			b.Memory.CreatedAt.Compare(a.Memory.CreatedAt),
			strings.Compare(a.Memory.ID, b.Memory.ID),
		)
	})
	return items
}

// assemble walks the ranked list and keeps every item that still fits the
// budget. Items are never truncated; one that doesn't fit is skipped and
// smaller ones after it may still be taken.
func assemble(ranked []Item, budget int, tokens TokenEstimator) ([]Item, int) {
	out := make([]Item, 0, len(ranked))
	used := 0
	for _, it := range ranked {
		cost := tokens.Estimate(costText(it.Memory))
		if cost > budget-used {
			continue
		}
		it.Tokens = cost
		used += cost
		out = append(out, it)
	}
	return out, used
}

func costText(m *memory.Memory) string {
	if m.Content != "" {
		return m.Content
	}
	return m.MediaRef
}
