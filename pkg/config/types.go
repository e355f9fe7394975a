package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent mnemo configuration stored as config.toml
// in the .mnemo/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	GraphStore  GraphStoreConfig  `toml:"graph_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Cache       CacheConfig       `toml:"cache"`
	Ingest      IngestConfig      `toml:"ingest"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
	Events      EventsConfig      `toml:"events"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// server (e.g. mnemo recall --remote). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// GraphStoreConfig holds knowledge graph store settings.
type GraphStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding and entity model settings.
type EmbeddingConfig struct {
	Provider        string `toml:"provider,omitempty"`
	Target          string `toml:"target,omitempty"`
	Model           string `toml:"model,omitempty"`
	ExtractionModel string `toml:"extraction_model,omitempty"`
	Dimensions      uint   `toml:"dimensions,omitempty"`
}

// RetrievalConfig tunes the hybrid retrieval engine.
type RetrievalConfig struct {
	VectorTopK     int      `toml:"vector_top_k,omitempty"`
	GraphDepth     int      `toml:"graph_depth,omitempty"`
	DecayLambda    *float64 `toml:"decay_lambda,omitempty"`
	WeightVector   float64  `toml:"weight_vector,omitempty"`
	WeightGraph    float64  `toml:"weight_graph,omitempty"`
	WeightTemporal float64  `toml:"weight_temporal,omitempty"`
	MinEdgeWeight  float64  `toml:"min_edge_weight,omitempty"`
	Tokenizer      string   `toml:"tokenizer,omitempty"`
	CharsPerToken  int      `toml:"chars_per_token,omitempty"`
}

// CacheConfig sizes the in-process memory cache.
type CacheConfig struct {
	Capacity int    `toml:"capacity,omitempty"`
	Stripes  int    `toml:"stripes,omitempty"`
	TTL      string `toml:"ttl,omitempty"`
}

// IngestConfig tunes the ingestion coordinator. Durations are Go duration
// strings ("200ms", "168h").
type IngestConfig struct {
	GraphRetryAttempts int     `toml:"graph_retry_attempts,omitempty"`
	RetryInitial       string  `toml:"retry_initial,omitempty"`
	RetryMax           string  `toml:"retry_max,omitempty"`
	ModelAttempts      int     `toml:"model_attempts,omitempty"`
	Workers            uint    `toml:"workers,omitempty"`
	QueueSize          uint    `toml:"queue_size,omitempty"`
	SweepInterval      string  `toml:"sweep_interval,omitempty"`
	EdgeDecayFactor    float64 `toml:"edge_decay_factor,omitempty"`
	EdgeDecayAfter     string  `toml:"edge_decay_after,omitempty"`
	EdgeDecayInterval  string  `toml:"edge_decay_interval,omitempty"`
}

// TimeoutsConfig bounds every store and model call.
type TimeoutsConfig struct {
	Embedding string `toml:"embedding,omitempty"`
	Vector    string `toml:"vector,omitempty"`
	Graph     string `toml:"graph,omitempty"`
}

// EventsConfig selects where memory events are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// Duration parses a config duration string. Empty means zero, which the
// engine packages treat as "use the default".
func Duration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// floatPtrKey is floatKey for settings where zero is a meaningful value
// and nil means unset.
func floatPtrKey(name string, field func(c *Config) **float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == nil {
				return ""
			}
			return strconv.FormatFloat(**field(c), 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = &f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen":        stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"graph_store.provider": stringKey(func(c *Config) *string { return &c.GraphStore.Provider }),
	"graph_store.target":   stringKey(func(c *Config) *string { return &c.GraphStore.Target }),

	"embedding.provider":         stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":           stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":            stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.extraction_model": stringKey(func(c *Config) *string { return &c.Embedding.ExtractionModel }),
	"embedding.dimensions":       uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"retrieval.vector_top_k":    intKey("retrieval.vector_top_k", func(c *Config) *int { return &c.Retrieval.VectorTopK }),
	"retrieval.graph_depth":     intKey("retrieval.graph_depth", func(c *Config) *int { return &c.Retrieval.GraphDepth }),
	"retrieval.decay_lambda":    floatPtrKey("retrieval.decay_lambda", func(c *Config) **float64 { return &c.Retrieval.DecayLambda }),
	"retrieval.weight_vector":   floatKey("retrieval.weight_vector", func(c *Config) *float64 { return &c.Retrieval.WeightVector }),
	"retrieval.weight_graph":    floatKey("retrieval.weight_graph", func(c *Config) *float64 { return &c.Retrieval.WeightGraph }),
	"retrieval.weight_temporal": floatKey("retrieval.weight_temporal", func(c *Config) *float64 { return &c.Retrieval.WeightTemporal }),
	"retrieval.min_edge_weight": floatKey("retrieval.min_edge_weight", func(c *Config) *float64 { return &c.Retrieval.MinEdgeWeight }),
	"retrieval.tokenizer":       stringKey(func(c *Config) *string { return &c.Retrieval.Tokenizer }),
	"retrieval.chars_per_token": intKey("retrieval.chars_per_token", func(c *Config) *int { return &c.Retrieval.CharsPerToken }),

	"cache.capacity": intKey("cache.capacity", func(c *Config) *int { return &c.Cache.Capacity }),
	"cache.stripes":  intKey("cache.stripes", func(c *Config) *int { return &c.Cache.Stripes }),
	"cache.ttl":      durationKey("cache.ttl", func(c *Config) *string { return &c.Cache.TTL }),

	"ingest.graph_retry_attempts": intKey("ingest.graph_retry_attempts", func(c *Config) *int { return &c.Ingest.GraphRetryAttempts }),
	"ingest.retry_initial":        durationKey("ingest.retry_initial", func(c *Config) *string { return &c.Ingest.RetryInitial }),
	"ingest.retry_max":            durationKey("ingest.retry_max", func(c *Config) *string { return &c.Ingest.RetryMax }),
	"ingest.model_attempts":       intKey("ingest.model_attempts", func(c *Config) *int { return &c.Ingest.ModelAttempts }),
	"ingest.workers":              uintKey("ingest.workers", func(c *Config) *uint { return &c.Ingest.Workers }),
	"ingest.queue_size":           uintKey("ingest.queue_size", func(c *Config) *uint { return &c.Ingest.QueueSize }),
	"ingest.sweep_interval":       durationKey("ingest.sweep_interval", func(c *Config) *string { return &c.Ingest.SweepInterval }),
	"ingest.edge_decay_factor":    floatKey("ingest.edge_decay_factor", func(c *Config) *float64 { return &c.Ingest.EdgeDecayFactor }),
	"ingest.edge_decay_after":     durationKey("ingest.edge_decay_after", func(c *Config) *string { return &c.Ingest.EdgeDecayAfter }),
	"ingest.edge_decay_interval":  durationKey("ingest.edge_decay_interval", func(c *Config) *string { return &c.Ingest.EdgeDecayInterval }),

	"timeouts.embedding": durationKey("timeouts.embedding", func(c *Config) *string { return &c.Timeouts.Embedding }),
	"timeouts.vector":    durationKey("timeouts.vector", func(c *Config) *string { return &c.Timeouts.Vector }),
	"timeouts.graph":     durationKey("timeouts.graph", func(c *Config) *string { return &c.Timeouts.Graph }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
