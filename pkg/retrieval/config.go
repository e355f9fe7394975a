package retrieval

import (
	"log/slog"
	"time"
)

const (
	DefaultVectorTopK       = 15
	DefaultGraphDepth       = 3
	DefaultDecayLambda      = 0.05
	DefaultEmbeddingTimeout = 30 * time.Second
	DefaultVectorTimeout    = 5 * time.Second
	DefaultGraphTimeout     = 5 * time.Second
	DefaultProactiveWindow  = 7 * 24 * time.Hour
	DefaultTrendingEntities = 5
	DefaultSessionWindow    = 48 * time.Hour
	DefaultRecentLimit      = 10
)

// Weights are the fusion coefficients.
type Weights struct {
	Vector   float64 `json:"vector"`
	Graph    float64 `json:"graph"`
	Temporal float64 `json:"temporal"`
}

// DefaultWeights favors semantic similarity, then graph proximity, then
// recency.
func DefaultWeights() Weights {
	return Weights{Vector: 0.5, Graph: 0.3, Temporal: 0.2}
}

// Config tunes the engine. Zero values take the defaults above.
type Config struct {
	VectorTopK int
	GraphDepth int

	// DecayLambda nil means DefaultDecayLambda. Zero turns recency decay
	// off, so every memory scores a temporal 1.
	DecayLambda *float64

	// Dimensions is the expected length of a precomputed query embedding.
	// Zero skips the check.
	Dimensions int

	// Weights nil means DefaultWeights. A non-nil value is used as is, so
	// a stage can be switched off with a zero weight.
	Weights *Weights

	// MinEdgeWeight prunes light co-occurs edges during traversal.
	MinEdgeWeight float64

	// Tokens estimates context cost. Nil means four characters per token.
	Tokens TokenEstimator

	EmbeddingTimeout time.Duration
	VectorTimeout    time.Duration
	GraphTimeout     time.Duration

	// ProactiveWindow is how far back trending entities are counted.
	ProactiveWindow  time.Duration
	TrendingEntities int

	// SessionWindow bounds what Recent returns.
	SessionWindow time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.VectorTopK <= 0 {
		c.VectorTopK = DefaultVectorTopK
	}
	if c.GraphDepth <= 0 {
		c.GraphDepth = DefaultGraphDepth
	}
	if c.DecayLambda == nil || *c.DecayLambda < 0 {
		l := DefaultDecayLambda
		c.DecayLambda = &l
	}
	if c.Weights == nil {
		w := DefaultWeights()
		c.Weights = &w
	}
	if c.Tokens == nil {
		c.Tokens = CharEstimator{}
	}
	if c.EmbeddingTimeout <= 0 {
		c.EmbeddingTimeout = DefaultEmbeddingTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = DefaultVectorTimeout
	}
	if c.GraphTimeout <= 0 {
		c.GraphTimeout = DefaultGraphTimeout
	}
	if c.ProactiveWindow <= 0 {
		c.ProactiveWindow = DefaultProactiveWindow
	}
	if c.TrendingEntities <= 0 {
		c.TrendingEntities = DefaultTrendingEntities
	}
	if c.SessionWindow <= 0 {
		c.SessionWindow = DefaultSessionWindow
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
