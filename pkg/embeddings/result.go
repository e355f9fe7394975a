package embeddings

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// ErrMalformedResponse is returned when the model answers with something
// that doesn't satisfy the result schema. It wraps memory.ErrModelUnavailable
// so callers treat it like any other model failure.
var ErrMalformedResponse = fmt.Errorf("%w: malformed model response", memory.ErrModelUnavailable)

// Input is one capture handed to the model.
type Input struct {
	OwnerID     string             `json:"owner_id"`
	Content     string             `json:"content"`
	ContentType memory.ContentType `json:"content_type"`
	MediaRef    string             `json:"media_ref,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
}

// Result is the strict output schema of Process.
type Result struct {
	Text      string             `json:"text"`
	Entities  []memory.EntityRef `json:"entities"`
	Sentiment memory.Sentiment   `json:"sentiment"`
	Embedding []float32          `json:"embedding"`
	Keywords  []string           `json:"keywords,omitempty"`
}

// Validate enforces the result schema. dimensions of zero skips the
// embedding length check; a nil embedding is allowed.
func (r *Result) Validate(dimensions int) error {
	if r == nil {
		return fmt.Errorf("%w: empty result", ErrMalformedResponse)
	}

	var errs []error
	if strings.TrimSpace(r.Text) == "" {
		errs = append(errs, errors.New("text is empty"))
	}
	switch r.Sentiment {
	case memory.SentimentPositive, memory.SentimentNegative, memory.SentimentNeutral, memory.SentimentMixed:
	default:
		errs = append(errs, fmt.Errorf("unknown sentiment %q", r.Sentiment))
	}
	for i, e := range r.Entities {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Errorf("entity %d has no name", i))
		}
	}
	if r.Embedding != nil {
		if dimensions > 0 && len(r.Embedding) != dimensions {
			errs = append(errs, fmt.Errorf("embedding has %d dimensions, expected %d", len(r.Embedding), dimensions))
		}
		for _, v := range r.Embedding {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				errs = append(errs, errors.New("embedding contains non-finite values"))
				break
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, errors.Join(errs...))
	}
	return nil
}

// Memory converts a validated result into a memory ready for ingestion.
func (r *Result) Memory(in Input) memory.Memory {
	ct := in.ContentType
	if ct == "" {
		ct = memory.ContentText
	}
	return memory.Memory{
		OwnerID:     in.OwnerID,
		Content:     r.Text,
		ContentType: ct,
		Embedding:   r.Embedding,
		Entities:    memory.UniqueRefs(r.Entities),
		Sentiment:   r.Sentiment,
		MediaRef:    in.MediaRef,
		Tags:        memory.NormalizeTags(in.Tags),
	}
}
