// Package stack assembles the memory engine from a Config: stores, model
// client, cache, event publisher, retrieval engine and ingestion
// coordinator. The serve command and the local CLI commands share it.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/papercomputeco/mnemo/pkg/cache"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/mnemo/pkg/embeddings/utils"
	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/eventstream/kafka"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
	"github.com/papercomputeco/mnemo/pkg/graph"
	graphutils "github.com/papercomputeco/mnemo/pkg/graph/utils"
	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	"github.com/papercomputeco/mnemo/pkg/vector"
	vectorutils "github.com/papercomputeco/mnemo/pkg/vector/utils"
)

const (
	vectorDBFile = "vectors.db"
	graphDBFile  = "graph.db"
)

// Stack owns every component built by Open. Close releases them in reverse
// order of construction.
type Stack struct {
	Vectors   vector.Driver
	Graph     graph.Driver
	Client    embeddings.Client
	Cache     *cache.Cache
	Events    eventstream.Publisher
	Retrieval *retrieval.Engine
	Ingest    *ingest.Coordinator

	closers []func() error
	log     *slog.Logger
}

// Options controls where Open puts file-backed stores.
type Options struct {
	// ConfigDir overrides the .mnemo directory used for default sqlite
	// paths.
	ConfigDir string

	Logger *slog.Logger
}

type durations struct {
	cacheTTL, retryInitial, retryMax, sweep   time.Duration
	decayAfter, decayInterval                 time.Duration
	embedTimeout, vectorTimeout, graphTimeout time.Duration
}

// Open builds the stack described by cfg. On error everything built so far
// is closed.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("stack: nil config")
	}
	log := logger.OrNop(opts.Logger)

	d, err := parseDurations(cfg)
	if err != nil {
		return nil, err
	}

	s := &Stack{log: log}
	if err := s.open(ctx, cfg, opts, d); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stack) open(ctx context.Context, cfg *config.Config, opts Options, d durations) error {
	vectorTarget, err := sqlitePath(cfg.VectorStore.Provider, "sqlite", cfg.VectorStore.Target, vectorDBFile, opts.ConfigDir)
	if err != nil {
		return err
	}
	s.Vectors, err = vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    vectorTarget,
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       s.log,
	})
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	s.closers = append(s.closers, s.Vectors.Close)
	s.log.Info("vector store ready", "provider", cfg.VectorStore.Provider, "target", redact(vectorTarget))

	graphTarget, err := sqlitePath(cfg.GraphStore.Provider, "sqlite", cfg.GraphStore.Target, graphDBFile, opts.ConfigDir)
	if err != nil {
		return err
	}
	s.Graph, err = graphutils.NewGraphDriver(ctx, &graphutils.NewGraphDriverOpts{
		ProviderType: cfg.GraphStore.Provider,
		Target:       graphTarget,
		Logger:       s.log,
	})
	if err != nil {
		return fmt.Errorf("creating graph store: %w", err)
	}
	s.closers = append(s.closers, s.Graph.Close)
	s.log.Info("graph store ready", "provider", cfg.GraphStore.Provider, "target", redact(graphTarget))

	s.Client, err = embeddingutils.NewClient(&embeddingutils.NewClientOpts{
		ProviderType:    cfg.Embedding.Provider,
		TargetURL:       cfg.Embedding.Target,
		Model:           cfg.Embedding.Model,
		ExtractionModel: cfg.Embedding.ExtractionModel,
	})
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}
	s.closers = append(s.closers, s.Client.Close)

	s.Cache = cache.New(cache.Config{
		Capacity: cfg.Cache.Capacity,
		Stripes:  cfg.Cache.Stripes,
		TTL:      d.cacheTTL,
	}, s.log)
	s.closers = append(s.closers, func() error { s.Cache.Close(); return nil })

	s.Events, err = newPublisher(cfg.Events, s.log)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, s.Events.Close)

	s.Retrieval = retrieval.NewEngine(retrieval.Config{
		VectorTopK:  cfg.Retrieval.VectorTopK,
		GraphDepth:  cfg.Retrieval.GraphDepth,
		DecayLambda: cfg.Retrieval.DecayLambda,
		Dimensions:  int(cfg.Embedding.Dimensions),
		Weights: &retrieval.Weights{
			Vector:   cfg.Retrieval.WeightVector,
			Graph:    cfg.Retrieval.WeightGraph,
			Temporal: cfg.Retrieval.WeightTemporal,
		},
		MinEdgeWeight:    cfg.Retrieval.MinEdgeWeight,
		Tokens:           retrieval.NewEstimator(cfg.Retrieval.Tokenizer, cfg.Retrieval.CharsPerToken, s.log),
		EmbeddingTimeout: d.embedTimeout,
		VectorTimeout:    d.vectorTimeout,
		GraphTimeout:     d.graphTimeout,
		Logger:           s.log,
	}, s.Vectors, s.Graph, s.Client, s.Cache)

	s.Ingest, err = ingest.NewCoordinator(ingest.Config{
		Dimensions:         int(cfg.Embedding.Dimensions),
		GraphRetryAttempts: cfg.Ingest.GraphRetryAttempts,
		RetryInitial:       d.retryInitial,
		RetryMax:           d.retryMax,
		ModelAttempts:      cfg.Ingest.ModelAttempts,
		Workers:            cfg.Ingest.Workers,
		QueueSize:          cfg.Ingest.QueueSize,
		SweepInterval:      d.sweep,
		EdgeDecayFactor:    cfg.Ingest.EdgeDecayFactor,
		EdgeDecayAfter:     d.decayAfter,
		EdgeDecayInterval:  d.decayInterval,
		EmbeddingTimeout:   d.embedTimeout,
		VectorTimeout:      d.vectorTimeout,
		GraphTimeout:       d.graphTimeout,
		Logger:             s.log,
	}, s.Vectors, s.Graph, s.Client, s.Cache, s.Events)
	if err != nil {
		return fmt.Errorf("creating ingest coordinator: %w", err)
	}
	s.closers = append(s.closers, s.Ingest.Close)

	return nil
}

// Close shuts the coordinator down first so pending graph retries finish
// before the stores go away.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func newPublisher(cfg config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", cfg.Provider)
	}
}

// sqlitePath fills in <dotdir>/<file> for a file-backed provider with no
// target.
func sqlitePath(provider, fileProvider, target, file, configDir string) (string, error) {
	if provider != fileProvider || target != "" {
		return target, nil
	}
	dir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving data directory: %w", err)
	}
	return filepath.Join(dir, file), nil
}

func parseDurations(cfg *config.Config) (durations, error) {
	var d durations
	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"cache.ttl", cfg.Cache.TTL, &d.cacheTTL},
		{"ingest.retry_initial", cfg.Ingest.RetryInitial, &d.retryInitial},
		{"ingest.retry_max", cfg.Ingest.RetryMax, &d.retryMax},
		{"ingest.sweep_interval", cfg.Ingest.SweepInterval, &d.sweep},
		{"ingest.edge_decay_after", cfg.Ingest.EdgeDecayAfter, &d.decayAfter},
		{"ingest.edge_decay_interval", cfg.Ingest.EdgeDecayInterval, &d.decayInterval},
		{"timeouts.embedding", cfg.Timeouts.Embedding, &d.embedTimeout},
		{"timeouts.vector", cfg.Timeouts.Vector, &d.vectorTimeout},
		{"timeouts.graph", cfg.Timeouts.Graph, &d.graphTimeout},
	}
	for _, f := range fields {
		v, err := config.Duration(f.raw)
		if err != nil {
			return d, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}
	return d, nil
}

// redact masks the password in a DSN before it is logged.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.User == nil {
		return target
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
