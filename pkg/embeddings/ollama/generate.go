package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

const processPrompt = `Analyze the following %s capture and answer with a single JSON object:
{"text": "cleaned text of the capture", "entities": [{"name": "...", "type": "person|place|organization|date|time|money|contact|url|other"}], "sentiment": "positive|negative|neutral|mixed", "keywords": ["..."]}

Capture:
%s`

const extractPrompt = `List the named entities in the following text as a single JSON object:
{"entities": [{"name": "...", "type": "person|place|organization|date|time|money|contact|url|other"}]}

Text:
%s`

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// extraction mirrors the model's JSON answer. Pointer fields distinguish a
// missing key from an empty value.
type extraction struct {
	Text      *string `json:"text"`
	Entities  *[]struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
	Sentiment *string  `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}

// Process asks the extraction model for text, entities and sentiment, then
// embeds the text. Any missing required field fails the whole result.
func (c *Client) Process(ctx context.Context, in embeddings.Input) (*embeddings.Result, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.MediaRef == "" {
		return nil, fmt.Errorf("%w: nothing to process", memory.ErrInvalidInput)
	}
	if content == "" {
		content = in.MediaRef
	}
	ct := in.ContentType
	if ct == "" {
		ct = memory.ContentText
	}

	ex, err := c.generate(ctx, fmt.Sprintf(processPrompt, ct, content))
	if err != nil {
		return nil, err
	}
	if ex.Text == nil || ex.Entities == nil || ex.Sentiment == nil {
		return nil, fmt.Errorf("%w: response is missing required fields", embeddings.ErrMalformedResponse)
	}

	res := &embeddings.Result{
		Text:      *ex.Text,
		Entities:  refs(ex),
		Sentiment: memory.Sentiment(strings.ToLower(*ex.Sentiment)),
		Keywords:  ex.Keywords,
	}

	emb, err := c.Embed(ctx, res.Text)
	if err != nil {
		return nil, err
	}
	res.Embedding = emb

	if err := res.Validate(0); err != nil {
		return nil, err
	}
	return res, nil
}

// Extract asks the extraction model for the entities in text.
func (c *Client) Extract(ctx context.Context, text string) ([]memory.EntityRef, error) {
	ex, err := c.generate(ctx, fmt.Sprintf(extractPrompt, text))
	if err != nil {
		return nil, err
	}
	if ex.Entities == nil {
		return nil, fmt.Errorf("%w: response has no entities field", embeddings.ErrMalformedResponse)
	}
	return memory.UniqueRefs(refs(ex)), nil
}

func (c *Client) generate(ctx context.Context, prompt string) (*extraction, error) {
	req := generateRequest{
		Model:   c.extractionModel,
		Prompt:  prompt,
		Format:  "json",
		Stream:  false,
		Options: map[string]any{"temperature": 0.1},
	}

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return nil, memory.ModelError("ollama generate", err)
	}

	var ex extraction
	if err := json.Unmarshal([]byte(resp.Response), &ex); err != nil {
		return nil, fmt.Errorf("%w: %w", embeddings.ErrMalformedResponse, err)
	}
	return &ex, nil
}

func refs(ex *extraction) []memory.EntityRef {
	if ex.Entities == nil {
		return nil
	}
	out := make([]memory.EntityRef, 0, len(*ex.Entities))
	for _, e := range *ex.Entities {
		out = append(out, memory.EntityRef{Name: e.Name, Type: memory.ParseEntityType(e.Type)})
	}
	return out
}
