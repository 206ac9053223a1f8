package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrServerOffline indicates the media catalog server is unreachable
	ErrServerOffline = errors.New("media catalog server is unreachable")

	// ErrAuthFailed indicates the presented credentials are invalid or expired
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrNotLoggedIn indicates an operation that needs a session was called without one
	ErrNotLoggedIn = errors.New("not logged in")
)

// RequestError is a structured transport failure.
// Status is 0 when no HTTP response was received.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether the status marks invalid or expired credentials.
func (e *RequestError) IsAuthFailure() bool {
	return e.Status == 401
}

// ErrorKind classifies an OperationError.
type ErrorKind int

const (
	// KindRequest is a non-authorization failure reported by the server.
	KindRequest ErrorKind = iota
	// KindAuth is an authorization failure; the session has been torn down.
	KindAuth
	// KindTransport is a failure before any response arrived (offline, cancelled).
	KindTransport
	// KindNotLoggedIn is a local precondition failure, no request was sent.
	KindNotLoggedIn
	// KindStorage is a failure of the local credential store.
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindNotLoggedIn:
		return "not_logged_in"
	case KindStorage:
		return "storage"
	default:
		return "request"
	}
}

// OperationError is the uniform failure returned by every session and cache
// operation. Its Error text is the message a user should see.
type OperationError struct {
	Op      string
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *OperationError) Error() string { return e.Message }

func (e *OperationError) Unwrap() error { return e.Err }

// NotLoggedIn builds the precondition failure for op.
func NotLoggedIn(op string) *OperationError {
	return &OperationError{
		Op:      op,
		Kind:    KindNotLoggedIn,
		Message: ErrNotLoggedIn.Error(),
		Err:     ErrNotLoggedIn,
	}
}

// KindOf returns the kind of err if it is an OperationError.
func KindOf(err error) (ErrorKind, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind, true
	}
	return 0, false
}
