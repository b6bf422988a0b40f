package ticktick

import (
	"fmt"
	"time"
)

// ValidationError reports bad caller input. It is returned before any
// network call is attempted and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError reports a credential failure that is fatal to the current
// session. A rejected refresh token or a second 401 after a forced refresh
// both surface as AuthError; recovering requires re-running the interactive
// authorization flow.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError reports upstream throttling that persisted past the retry
// budget. RetryAfter carries the last wait the upstream asked for.
type RateLimitError struct {
	RetryAfter time.Duration
	Attempts   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by upstream after %d attempts (retry after %s)", e.Attempts, e.RetryAfter)
}

// UpstreamError reports a non-auth, non-rate-limit failure from the API.
// It carries the HTTP status code and the response body for the operator.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Body)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// ParseError reports a malformed upstream payload. It is surfaced as-is and
// never retried; the raw decoding failure is wrapped, not propagated.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed upstream payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError reports a network timeout. The client retries it once under
// the same backoff policy as rate limiting before surfacing it.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
