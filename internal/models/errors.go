package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotRetryable is returned when retry is requested for an article that is not failed.
	ErrNotRetryable = errors.New("article is not in a retryable state")
	// ErrAlreadyClaimed is returned when another worker won the claim.
	ErrAlreadyClaimed = errors.New("article already claimed")
	// ErrImageUnavailable is returned by an image provider that found nothing usable.
	ErrImageUnavailable = errors.New("image unavailable")
)

// FetchError reports a failed source fetch.
type FetchError struct {
	SourceID string
	URL      string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch source %s (%s): %v", e.SourceID, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProcessingError reports a content transformation failure.
type ProcessingError struct {
	Model string
	Err   error
}

func (e *ProcessingError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("content processing (%s): %v", e.Model, e.Err)
	}
	return fmt.Sprintf("content processing: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// EmbeddingError reports a failure of the embedding service.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// PublishAuthError means the destination rejected the site's credentials.
type PublishAuthError struct {
	StatusCode int
	Message    string
}

func (e *PublishAuthError) Error() string {
	return fmt.Sprintf("publish unauthorized (status %d): %s", e.StatusCode, e.Message)
}

// PublishTransientError is any other publish failure; retrying may succeed.
type PublishTransientError struct {
	StatusCode int
	Err        error
}

func (e *PublishTransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("publish failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("publish failed: %v", e.Err)
}

func (e *PublishTransientError) Unwrap() error { return e.Err }
