// Package transporttest provides an in-memory domain.Transport for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/mmcdole/mediasync/internal/domain"
)

// HandlerFunc answers one request
type HandlerFunc func(req domain.Request) ([]byte, error)

// Transport records every request and routes it to a handler keyed by
// "METHOD /path". Unrouted requests fail with a 404 RequestError.
type Transport struct {
	mu       sync.Mutex
	routes   map[string]HandlerFunc
	requests []domain.Request
}

// New creates an empty fake transport
func New() *Transport {
	return &Transport{routes: make(map[string]HandlerFunc)}
}

// Handle routes method+path to fn, replacing any earlier handler.
func (t *Transport) Handle(method, path string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[method+" "+path] = fn
}

// Reply routes method+path to a fixed JSON response.
func (t *Transport) Reply(method, path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	t.Handle(method, path, func(domain.Request) ([]byte, error) { return data, nil })
}

// Fail routes method+path to a RequestError.
func (t *Transport) Fail(method, path string, status int, message string) {
	t.Handle(method, path, func(domain.Request) ([]byte, error) {
		return nil, &domain.RequestError{Status: status, Message: message}
	})
}

// Send implements domain.Transport
func (t *Transport) Send(ctx context.Context, req domain.Request) ([]byte, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	fn, ok := t.routes[req.Method+" "+req.Path]
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.RequestError{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("no route for %s %s", req.Method, req.Path),
		}
	}
	return fn(req)
}

// Requests returns a copy of every request seen so far
func (t *Transport) Requests() []domain.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Request(nil), t.requests...)
}

// Count returns how many requests hit method+path
func (t *Transport) Count(method, path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}
