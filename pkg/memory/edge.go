package memory

import "time"

// EdgeType is the relationship an Edge represents.
type EdgeType string

const (
	// EdgeMentions links a memory to an entity it names.
	EdgeMentions EdgeType = "mentions"

	// EdgeCoOccurs links two entities named by the same memory. It is stored
	// once per unordered pair and traversed in both directions.
	EdgeCoOccurs EdgeType = "co-occurs"
)

// Edge is a typed, weighted relationship in the graph.
type Edge struct {
	OwnerID    string    `json:"owner_id"`
	Type       EdgeType  `json:"type"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Weight     float64   `json:"weight"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// PairKey orders two entity IDs canonically for a co-occurs edge.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
