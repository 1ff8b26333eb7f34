package sesserr

import (
	"context"
	"errors"
	"net"
)

// Kind classifies errors for retry decisions.
type Kind int

const (
	// KindConnectivity means no network path is available. Retryable once
	// connectivity returns; not an application error.
	KindConnectivity Kind = iota
	// KindTransport means the connection dropped, timed out, or was
	// malformed at the protocol level. Retryable with backoff.
	KindTransport
	// KindAuthorization means a credential was rejected by the backend.
	// Never retryable with the same credential.
	KindAuthorization
	// KindMalformed means a locally-constructed request or payload was
	// invalid. A local bug; never retryable.
	KindMalformed
	// KindExhausted means all permitted retry attempts were consumed.
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindTransport:
		return "transport"
	case KindAuthorization:
		return "authorization"
	case KindMalformed:
		return "malformed"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Error wraps an error with a Kind for retry decisions.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Connectivity wraps an error as a connectivity (retryable) error.
func Connectivity(err error) error {
	return &Error{Kind: KindConnectivity, Err: err}
}

// Transport wraps an error as a transport (retryable) error.
func Transport(err error) error {
	return &Error{Kind: KindTransport, Err: err}
}

// Authorization wraps an error as an authorization (terminal) error.
func Authorization(err error) error {
	return &Error{Kind: KindAuthorization, Err: err}
}

// Malformed wraps an error as a malformed-request (terminal) error.
func Malformed(err error) error {
	return &Error{Kind: KindMalformed, Err: err}
}

// Exhausted wraps the last error after all retry attempts were consumed.
func Exhausted(err error) error {
	return &Error{Kind: KindExhausted, Err: err}
}

// KindOf extracts the error kind. Unclassified errors return KindTransport:
// unknown network failures are retried rather than surfaced immediately,
// with timeouts and dial failures folded in the same way.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransport
	}
	return KindTransport
}

// Retryable reports whether retrying the operation can help.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnectivity, KindTransport:
		return true
	default:
		return false
	}
}
