package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error leaving a use case matches exactly one of the first five
// via errors.Is; the rest refine a class or describe caller mistakes.
var (
	// ErrConfiguration signals missing credentials or settings, detected before any network call.
	ErrConfiguration = errors.New("configuration error")
	// ErrExtraction signals unparseable document bytes or no usable text.
	ErrExtraction = errors.New("extraction error")
	// ErrEmbedding signals an embedding provider failure.
	ErrEmbedding = errors.New("embedding error")
	// ErrStore signals a vector store failure.
	ErrStore = errors.New("store error")
	// ErrGeneration signals a generative model failure.
	ErrGeneration = errors.New("generation error")

	// ErrNoReadableText signals a parseable document that yielded zero chunks.
	ErrNoReadableText = errors.New("no readable text found in document")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")

	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// ConfigError builds an ErrConfiguration for a missing setting.
func ConfigError(component, setting string) error {
	return fmt.Errorf("%w: %s: %s is not set", ErrConfiguration, component, setting)
}

// DimMismatchError reports a vector of the wrong size as both an embedding failure
// and a dimension mismatch.
func DimMismatchError(got, want int) error {
	return fmt.Errorf("%w: got %d, want %d", errors.Join(ErrEmbedding, ErrVectorDimMismatch), got, want)
}
