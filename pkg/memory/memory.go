// Package memory defines the data model shared by every layer of the hybrid
// memory engine: memories, entities, the typed edges between them and the
// error taxonomy callers match against with errors.Is.
//
// A Memory is immutable once written. Entities are deduplicated per owner by
// (normalized name, type) and carry a deterministic ID, so two concurrent
// ingestions that mention "Sarah" converge on the same graph node without
// coordinating.
package memory

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ContentType is the modality of a capture.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentAudio    ContentType = "audio"
	ContentVideo    ContentType = "video"
	ContentDocument ContentType = "document"
	ContentMixed    ContentType = "mixed"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentAudio, ContentVideo, ContentDocument, ContentMixed:
		return true
	}
	return false
}

// Sentiment is the coarse emotional tone of a memory.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// ParseSentiment maps free-form labels onto a Sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	case SentimentMixed:
		return SentimentMixed
	}
	return SentimentNeutral
}

// Memory is one durable unit of captured knowledge.
type Memory struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	CreatedAt   time.Time   `json:"created_at"`

	// Embedding may be nil, in which case the memory is only reachable
	// through the graph.
	Embedding []float32 `json:"embedding,omitempty"`

	// Entities are kept in mention order.
	Entities  []EntityRef `json:"entities,omitempty"`
	Sentiment Sentiment   `json:"sentiment,omitempty"`
	MediaRef  string      `json:"media_ref,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
}

// Clone returns a deep copy so cached values can't be mutated by callers.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Embedding = slices.Clone(m.Embedding)
	c.Entities = slices.Clone(m.Entities)
	c.Tags = slices.Clone(m.Tags)
	return &c
}

// NormalizeTags trims, lower-cases, sorts and de-duplicates tags.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Validate checks the write-time invariants of a memory. dimensions of zero
// skips the embedding length check.
func (m *Memory) Validate(dimensions int) error {
	switch {
	case m == nil:
		return fmt.Errorf("%w: nil memory", ErrInvalidInput)
	case strings.TrimSpace(m.OwnerID) == "":
		return fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	case strings.TrimSpace(m.Content) == "" && strings.TrimSpace(m.MediaRef) == "":
		return fmt.Errorf("%w: content or media ref is required", ErrInvalidInput)
	case m.ContentType != "" && !m.ContentType.Valid():
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, m.ContentType)
	case dimensions > 0 && m.Embedding != nil && len(m.Embedding) != dimensions:
		return fmt.Errorf("%w: embedding has %d dimensions, expected %d", ErrInvalidInput, len(m.Embedding), dimensions)
	}
	return nil
}
