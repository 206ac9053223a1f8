package domain

import (
	"context"
	"net/http"
)

// CredentialStore persists string key-value pairs across process restarts.
type CredentialStore interface {
	// Get returns the value for key and whether it was present
	Get(key string) (string, bool)

	// Set stores value under key
	Set(key, value string) error

	// Remove deletes key; removing a missing key is not an error
	Remove(key string) error
}

// Request describes one call to the catalog server.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   any // JSON-encoded when non-nil
}

// Transport issues requests against the catalog server.
// Failures with a response are returned as *RequestError.
type Transport interface {
	Send(ctx context.Context, req Request) ([]byte, error)
}
