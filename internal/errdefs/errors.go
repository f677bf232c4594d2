// Package errdefs defines the error taxonomy shared across the pipeline.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - referenced entity missing or not owned by the caller
	ErrNotFound = errors.New("not found")

	// ErrNoQueryTerms - the ranking engine has nothing to search with
	// (no suggested queries and no keywords)
	ErrNoQueryTerms = errors.New("no query terms available")

	// ErrAlreadyGenerated - a concurrent caller finished the generation for
	// this key; the caller should re-read the committed result from storage
	ErrAlreadyGenerated = errors.New("already generated by concurrent caller")
)

// ProviderError wraps a failure from an upstream capability provider
// (understanding model, web search, or page fetcher).
type ProviderError struct {
	Provider   string // "understanding", "search", "fetcher"
	Op         string
	StatusCode int // HTTP status code if applicable
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed [%d]: %v", e.Provider, e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ParseError marks a provider response that was not in the expected
// structured shape. Callers always degrade on it, never fail.
type ParseError struct {
	Provider string
	Raw      string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("%s response not parseable: %s", e.Provider, raw)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
