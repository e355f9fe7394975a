package memory

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a memory or query fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable is returned when the embedding/entity model fails
	// or answers with something that isn't a valid result.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout is returned when a model call exceeds its deadline.
	ErrModelTimeout = errors.New("model timeout")

	// ErrAdapterUnavailable is returned when a vector or graph store fails.
	ErrAdapterUnavailable = errors.New("store unavailable")

	// ErrAdapterTimeout is returned when a store call exceeds its deadline.
	ErrAdapterTimeout = errors.New("store timeout")

	// ErrRetrievalUnavailable is returned when no retrieval stage can answer.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrNotFound is returned when a memory does not exist for the owner.
	ErrNotFound = errors.New("memory not found")
)

// AdapterError classifies a store failure into the taxonomy. Deadline and
// cancellation become ErrAdapterTimeout; errors already carrying a taxonomy
// sentinel are returned unchanged.
func AdapterError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAdapterUnavailable) || errors.Is(err, ErrAdapterTimeout) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrAdapterTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrAdapterUnavailable, err)
}

// ModelError is AdapterError for the embedding/entity client.
func ModelError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrModelTimeout) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrModelTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrModelUnavailable, err)
}

// Transient reports whether err is worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrModelTimeout) ||
		errors.Is(err, ErrAdapterUnavailable) || errors.Is(err, ErrAdapterTimeout)
}
