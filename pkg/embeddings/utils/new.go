// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/embeddings/heuristic"
	"github.com/papercomputeco/mnemo/pkg/embeddings/ollama"
)

type NewClientOpts struct {
	ProviderType    string
	TargetURL       string
	Model           string
	ExtractionModel string
}

// NewClient builds the configured model client. The heuristic provider
// still embeds through Ollama unless the target is empty or "none".
func NewClient(o *NewClientOpts) (embeddings.Client, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:         o.TargetURL,
			Model:           o.Model,
			ExtractionModel: o.ExtractionModel,
		})
	case "heuristic":
		if o.TargetURL == "" || o.TargetURL == "none" {
			return heuristic.NewClient(nil), nil
		}
		embedder, err := ollama.NewClient(ollama.Config{BaseURL: o.TargetURL, Model: o.Model})
		if err != nil {
			return nil, err
		}
		return heuristic.NewClient(embedder), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
