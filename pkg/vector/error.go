package vector

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

var (
	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = fmt.Errorf("%w: vector store connection failed", memory.ErrAdapterUnavailable)

	// ErrDimension is returned when an embedding doesn't match the index.
	ErrDimension = fmt.Errorf("%w: embedding dimension mismatch", memory.ErrInvalidInput)

	// ErrOwnerRequired is returned when a query or write has no owner.
	ErrOwnerRequired = fmt.Errorf("%w: owner id is required", memory.ErrInvalidInput)
)

// ValidateDocuments checks owner and embedding length for a batch.
// dimensions of zero accepts any non-empty embedding.
func ValidateDocuments(docs []Document, dimensions int) error {
	var errs []error
	for _, d := range docs {
		switch {
		case d.OwnerID == "":
			errs = append(errs, fmt.Errorf("document %s: %w", d.ID, ErrOwnerRequired))
		case len(d.Embedding) == 0:
			errs = append(errs, fmt.Errorf("document %s: %w: empty embedding", d.ID, ErrDimension))
		case dimensions > 0 && len(d.Embedding) != dimensions:
			errs = append(errs, fmt.Errorf("document %s: %w: got %d, want %d", d.ID, ErrDimension, len(d.Embedding), dimensions))
		}
	}
	return errors.Join(errs...)
}
