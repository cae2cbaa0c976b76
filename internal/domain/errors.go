// Package domain holds the error taxonomy and the small set of value types
// shared across module boundaries. Modules own their entity structs; only
// what crosses package lines lives here.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure so callers can decide whether to retry,
// surface, or map the error to a transport status.
type Kind int

const (
	// KindInternal is the default classification for unexpected failures
	// and invariant violations.
	KindInternal Kind = iota
	// KindTransient covers network errors and 5xx responses that survived
	// the retry budget.
	KindTransient
	// KindRateLimited covers 429 responses that survived the retry budget.
	// RetryAfter may carry the server-provided hint.
	KindRateLimited
	// KindUnauthorized covers credential rejection at the upstream API
	// after a one-time token refresh was already attempted.
	KindUnauthorized
	// KindNotFound covers 404 responses and lookup misses.
	KindNotFound
	// KindBadRequest covers non-retryable 4xx responses and invalid input.
	KindBadRequest
	// KindParse covers malformed upstream payloads (JSON, CSV, token
	// responses).
	KindParse
)

// String returns the stable lowercase name used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindParse:
		return "parse"
	default:
		return "internal"
	}
}

// Error is the classified error returned by external clients and module
// services. Message must be safe to log: no secrets, tokens, or raw
// Authorization material.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error wrapping an optional cause.
func E(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Transient builds a retryable error for network failures and exhausted
// 5xx retries.
func Transient(op, message string, cause error) *Error {
	return E(KindTransient, op, message, cause)
}

// RateLimited builds a retryable error carrying the server's retry hint.
// A zero retryAfter means the server provided none.
func RateLimited(op string, retryAfter time.Duration, cause error) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Message: "rate limited", RetryAfter: retryAfter, Err: cause}
}

// Unauthorized builds a credential-rejection error.
func Unauthorized(op, message string) *Error {
	return E(KindUnauthorized, op, message, nil)
}

// BadRequest builds a non-retryable input error.
func BadRequest(op, message string) *Error {
	return E(KindBadRequest, op, message, nil)
}

// NotFound builds a lookup-miss error that also matches ErrNotFound.
func NotFound(op, message string) *Error {
	return E(KindNotFound, op, message, ErrNotFound)
}

// Parse builds an error for a malformed upstream payload.
func Parse(op, message string, cause error) *Error {
	return E(KindParse, op, message, cause)
}

// Internal builds an invariant-violation error. These are never swallowed.
func Internal(op, message string, cause error) *Error {
	return E(KindInternal, op, message, cause)
}

// KindOf unwraps err to its classification. Unclassified errors report as
// KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}

// RetryAfterOf returns the server-provided retry hint carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var de *Error
	if errors.As(err, &de) && de.RetryAfter > 0 {
		return de.RetryAfter, true
	}
	return 0, false
}

// IsRetryable reports whether the failure may succeed on a later attempt.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindRateLimited
}

// Sentinel conditions surfaced by module services. They are matched with
// errors.Is and mapped to transport statuses by the web layer.
var (
	// ErrAlreadyRunning signals a duplicate sync or analysis for the same
	// tenant and operation fingerprint.
	ErrAlreadyRunning = errors.New("operation already running")

	// ErrInvalidTransition signals an apply on a recommendation that has
	// already left the pending state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound signals a lookup miss for an entity addressed by id.
	ErrNotFound = errors.New("not found")

	// ErrNoData signals an analysis request for a tenant with no synced
	// directory data.
	ErrNoData = errors.New("no directory data for tenant")

	// ErrInvalidCredentials signals that the identity authority rejected
	// the tenant's client credentials.
	ErrInvalidCredentials = errors.New("invalid tenant credentials")
)
