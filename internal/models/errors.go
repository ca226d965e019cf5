// Package models defines the core data structures for tg-twitter-sync.
//
// This file defines the error taxonomy shared by the client, the rate
// governor, and everything that consumes them. Every failure crossing the
// API boundary is classified into exactly one Kind so that retry policy and
// user-facing messages can be decided without string matching.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an API failure for retry and reporting decisions.
type Kind int

const (
	// KindRateLimited means the API rejected the call for quota reasons.
	// Retryable; may carry a server-specified wait.
	KindRateLimited Kind = iota
	// KindAuthenticationFailed means credentials were rejected. Not retryable.
	KindAuthenticationFailed
	// KindPermissionDenied means the credentials lack the required scope or
	// product access. Not retryable.
	KindPermissionDenied
	// KindTransientNetwork covers connection resets, timeouts and 5xx
	// responses. Retryable.
	KindTransientNetwork
	// KindPermanentClientError covers malformed requests and other 4xx
	// failures that will not succeed on retry.
	KindPermanentClientError
	// KindVerificationUnknown means a capability was used before it could be
	// verified, and verification itself failed for a reason outside the four
	// kinds above.
	KindVerificationUnknown
	// KindRetriesExhausted wraps the last retryable error once the retry
	// budget is spent.
	KindRetriesExhausted
)

// String returns the taxonomy name for logging and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindPermissionDenied:
		return "permission_denied"
	case KindTransientNetwork:
		return "transient_network"
	case KindPermanentClientError:
		return "permanent_client_error"
	case KindVerificationUnknown:
		return "verification_unknown"
	case KindRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// APIError is the classified error returned from every governed operation.
type APIError struct {
	Kind       Kind
	Op         string        // operation key the failure occurred under
	StatusCode int           // HTTP status when applicable, 0 otherwise
	RetryAfter time.Duration // server-specified wait, 0 when absent
	Err        error         // underlying cause, may be nil
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("x api: %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// NewError builds a classified error for the given operation key.
func NewError(kind Kind, op string, err error) *APIError {
	return &APIError{Kind: kind, Op: op, Err: err}
}

// Retryable reports whether the governor should retry this error.
func Retryable(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind == KindRateLimited || ae.Kind == KindTransientNetwork
	}
	// Unclassified errors are treated as transient, matching the reference
	// behavior of retrying anything that is not a known hard failure.
	return err != nil
}

// RetryAfter extracts the server-specified wait hint, 0 when absent.
func RetryAfter(err error) time.Duration {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == kind
}
