package ingest

import (
	"log/slog"
	"time"
)

const (
	DefaultGraphRetryAttempts = 3
	DefaultRetryInitial       = 200 * time.Millisecond
	DefaultRetryMax           = 5 * time.Second
	DefaultModelAttempts      = 3
	DefaultWorkers            = 4
	DefaultQueueSize          = 256
	DefaultSweepInterval      = time.Minute
	DefaultEdgeDecayFactor    = 0.9
	DefaultEdgeDecayAfter     = 7 * 24 * time.Hour
	DefaultEdgeDecayInterval  = 24 * time.Hour
	DefaultEmbeddingTimeout   = 30 * time.Second
	DefaultVectorTimeout      = 5 * time.Second
	DefaultGraphTimeout       = 5 * time.Second
)

// Config tunes the coordinator. Zero values take the defaults above.
type Config struct {
	// Dimensions is the expected embedding length. Zero skips the check.
	Dimensions int

	// GraphRetryAttempts bounds the background retries of a failed graph
	// write before the memory is flagged for the sweep.
	GraphRetryAttempts int
	RetryInitial       time.Duration
	RetryMax           time.Duration

	// ModelAttempts bounds Capture's model calls, first try included.
	ModelAttempts int

	Workers   uint
	QueueSize uint

	// SweepInterval is how often flagged memories are reconciled. Negative
	// disables the background sweep; Sweep can still be called directly.
	SweepInterval time.Duration

	// Co-occurs edges not seen for EdgeDecayAfter are scaled by
	// EdgeDecayFactor at most once per EdgeDecayInterval. A factor outside
	// (0, 1) disables decay.
	EdgeDecayFactor   float64
	EdgeDecayAfter    time.Duration
	EdgeDecayInterval time.Duration

	EmbeddingTimeout time.Duration
	VectorTimeout    time.Duration
	GraphTimeout     time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.GraphRetryAttempts <= 0 {
		c.GraphRetryAttempts = DefaultGraphRetryAttempts
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.ModelAttempts <= 0 {
		c.ModelAttempts = DefaultModelAttempts
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.EdgeDecayFactor == 0 {
		c.EdgeDecayFactor = DefaultEdgeDecayFactor
	}
	if c.EdgeDecayAfter <= 0 {
		c.EdgeDecayAfter = DefaultEdgeDecayAfter
	}
	if c.EdgeDecayInterval <= 0 {
		c.EdgeDecayInterval = DefaultEdgeDecayInterval
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
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
