package vector

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// EncodePayload serializes a memory without its embedding, for drivers that
// keep the payload as an opaque string next to the vector.
func EncodePayload(m *memory.Memory) (string, error) {
	if m == nil {
		return "", nil
	}
	c := m.Clone()
	c.Embedding = nil
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding payload for %s: %w", m.ID, err)
	}
	return string(b), nil
}

// DecodePayload is the inverse of EncodePayload. An empty payload yields nil.
func DecodePayload(s string) (*memory.Memory, error) {
	if s == "" {
		return nil, nil
	}
	var m memory.Memory
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return &m, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
