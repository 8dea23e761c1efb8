package scraper

import (
	"errors"
	"fmt"
)

// ErrNoToken signals that no bearer credential was available for the API
// path. Distinguishable so the job layer decides backoff, not the token
// manager.
var ErrNoToken = errors.New("no bearer token available")

// ErrTokenRejected signals the upstream answered 401/403 to the current
// token. On the first page this is a stale-token signal, not a permanent
// failure.
var ErrTokenRejected = errors.New("bearer token rejected by upstream")

// TransportError covers network timeouts, non-2xx responses, and malformed
// payloads from the direct API path.
type TransportError struct {
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (status %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ExtractionError means the expected page structure was absent in the
// browser path - likely an anti-bot interstitial or an upstream UI change.
// Remediation is identical to transport errors (retry with backoff).
type ExtractionError struct {
	Selector string
	Cause    error
}

func (e *ExtractionError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("extraction error at %q: %v", e.Selector, e.Cause)
	}
	return fmt.Sprintf("extraction error: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// ScrapeError is the terminal failure returned once retries are exhausted.
// It carries the last underlying cause for the job record.
type ScrapeError struct {
	Term     string
	Attempts int
	Cause    error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape of %q failed after %d attempts: %v", e.Term, e.Attempts, e.Cause)
}

func (e *ScrapeError) Unwrap() error { return e.Cause }

// IsCredentialError reports whether err is in the credential class
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrNoToken) || errors.Is(err, ErrTokenRejected)
}
