// Package errs defines the error taxonomy shared by the pipelines.
// Callers classify with errors.Is and map categories to transport codes
// at the boundary.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any pipeline work.
	ErrValidation = errors.New("validation error")

	// ErrExtraction marks a document from which no text could be recovered.
	ErrExtraction = errors.New("extraction error")

	// ErrNotFound marks missing data that is not a system failure
	// (no baseline profile, no indexed documents).
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks an unreachable embedding service,
	// generation model or vector index.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Extraction(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
