package heuristic

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Client implements embeddings.Client without a generative model. Embeddings
// come from an optional Embedder; without one, Embed reports the model as
// unavailable and processed results carry no embedding.
type Client struct {
	embedder embeddings.Embedder
}

// NewClient creates a heuristic client. embedder may be nil.
func NewClient(embedder embeddings.Embedder) *Client {
	return &Client{embedder: embedder}
}

func (c *Client) Process(ctx context.Context, in embeddings.Input) (*embeddings.Result, error) {
	text := strings.TrimSpace(in.Content)
	if text == "" && in.MediaRef == "" {
		return nil, fmt.Errorf("%w: nothing to process", memory.ErrInvalidInput)
	}
	if text == "" {
		text = fmt.Sprintf("[%s] %s", contentTypeOr(in.ContentType), in.MediaRef)
	}

	entities, _ := Extract(ctx, text)
	res := &embeddings.Result{
		Text:      text,
		Entities:  entities,
		Sentiment: Sentiment(text),
		Keywords:  Keywords(text, 12),
	}

	if c.embedder != nil {
		emb, err := c.embedder.Embed(ctx, text)
		if err != nil {
			return nil, memory.ModelError("embed", err)
		}
		res.Embedding = emb
	}
	return res, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", memory.ErrModelUnavailable)
	}
	emb, err := c.embedder.Embed(ctx, text)
	return emb, memory.ModelError("embed", err)
}

func (c *Client) Extract(ctx context.Context, text string) ([]memory.EntityRef, error) {
	return Extract(ctx, text)
}

func (c *Client) Close() error {
	if c.embedder != nil {
		return c.embedder.Close()
	}
	return nil
}

func contentTypeOr(ct memory.ContentType) memory.ContentType {
	if ct == "" {
		return memory.ContentMixed
	}
	return ct
}

var _ embeddings.Client = (*Client)(nil)
