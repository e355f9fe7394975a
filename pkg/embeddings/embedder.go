// Package embeddings defines the boundary to the generative model: turning a
// capture into text, entities, sentiment and an embedding, and turning query
// text into an embedding and entity mentions.
//
// The model is opaque. Implementations live in subpackages (ollama for a
// local model server, heuristic for the pattern-based fallback) and are
// injected into the ingestion coordinator and retrieval engine, never
// reached through package state.
package embeddings

import (
	"context"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Extractor pulls entity mentions out of free text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]memory.EntityRef, error)
}

// Processor runs the full capture pipeline for one input.
type Processor interface {
	// Process returns a validated Result or an error wrapping
	// memory.ErrModelUnavailable or memory.ErrModelTimeout.
	Process(ctx context.Context, in Input) (*Result, error)

	Close() error
}

// Client is everything the engine needs from the model side.
type Client interface {
	Processor
	Embedder
	Extractor
}
