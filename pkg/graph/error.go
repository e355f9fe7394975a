package graph

import (
	"fmt"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

var (
	// ErrOwnerRequired is returned when a call has no owner.
	ErrOwnerRequired = fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)

	// ErrInvalidBatch is returned for a batch that can't be written.
	ErrInvalidBatch = fmt.Errorf("%w: invalid graph batch", memory.ErrInvalidInput)
)

// ValidateBatch checks a batch before any driver touches storage.
func ValidateBatch(b *Batch) error {
	switch {
	case b == nil:
		return fmt.Errorf("%w: nil batch", ErrInvalidBatch)
	case b.OwnerID == "":
		return ErrOwnerRequired
	case b.Token == "":
		return fmt.Errorf("%w: missing token", ErrInvalidBatch)
	case b.Memory == nil || b.Memory.ID == "":
		return fmt.Errorf("%w: missing memory node", ErrInvalidBatch)
	case b.Memory.OwnerID != b.OwnerID:
		return fmt.Errorf("%w: memory owner %q does not match batch owner %q", ErrInvalidBatch, b.Memory.OwnerID, b.OwnerID)
	}
	for _, e := range b.Entities {
		if e.ID == "" || e.OwnerID != b.OwnerID {
			return fmt.Errorf("%w: entity %q is not owned by %q", ErrInvalidBatch, e.Name, b.OwnerID)
		}
	}
	for _, e := range b.Edges {
		if e.OwnerID != b.OwnerID || e.From == "" || e.To == "" {
			return fmt.Errorf("%w: edge %s %s->%s", ErrInvalidBatch, e.Type, e.From, e.To)
		}
		if e.Type != memory.EdgeMentions && e.Type != memory.EdgeCoOccurs {
			return fmt.Errorf("%w: unknown edge type %q", ErrInvalidBatch, e.Type)
		}
	}
	return nil
}
