package config

const (
	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "mnemo"
	defaultGraphProvider    = "sqlite"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultExtractionModel     = "llama3.2"
	defaultEmbeddingDimensions = 768

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "mnemo.memories"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		GraphStore: GraphStoreConfig{
			Provider: defaultGraphProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:        defaultEmbeddingProvider,
			Target:          defaultEmbeddingTarget,
			Model:           defaultEmbeddingModel,
			ExtractionModel: defaultExtractionModel,
			Dimensions:      defaultEmbeddingDimensions,
		},
		Retrieval: RetrievalConfig{
			VectorTopK:     15,
			GraphDepth:     3,
			DecayLambda:    floatPtr(0.05),
			WeightVector:   0.5,
			WeightGraph:    0.3,
			WeightTemporal: 0.2,
			Tokenizer:      "chars",
			CharsPerToken:  4,
		},
		Cache: CacheConfig{
			Capacity: 2000,
			Stripes:  16,
			TTL:      "10m",
		},
		Ingest: IngestConfig{
			GraphRetryAttempts: 3,
			RetryInitial:       "200ms",
			RetryMax:           "5s",
			ModelAttempts:      3,
			Workers:            4,
			QueueSize:          256,
			SweepInterval:      "1m",
			EdgeDecayFactor:    0.9,
			EdgeDecayAfter:     "168h",
			EdgeDecayInterval:  "24h",
		},
		Timeouts: TimeoutsConfig{
			Embedding: "30s",
			Vector:    "5s",
			Graph:     "5s",
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
