package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/mediasync/internal/domain"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	baseRetryDelay    = 500 * time.Millisecond
)

// Client implements domain.Transport over HTTP with JSON bodies.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ domain.Transport = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-attempt HTTP timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets how often a read that got a 5xx response is retried.
// Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base backoff delay
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a transport for the catalog server at baseURL
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		retryDelay: baseRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs req against the server.
// Reads that fail with a 5xx status are retried with exponential backoff;
// other methods may already have taken effect and are sent once.
func (c *Client) Send(ctx context.Context, req domain.Request) ([]byte, error) {
	reqURL := c.baseURL + req.Path

	maxRetries := 0
	if retryable(req.Method) {
		maxRetries = c.maxRetries
	}

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Wait before retry (exponential backoff)
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		c.logger.Debug("catalog request", "method", req.Method, "url", reqURL, "attempt", attempt, "request_id", requestID)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Error("catalog request failed", "error", err, "url", reqURL)
			return nil, &domain.RequestError{
				Message: domain.ErrServerOffline.Error(),
				Err:     errors.Join(domain.ErrServerOffline, err),
			}
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			lastErr = newRequestError(resp.StatusCode, respBody)
			c.logger.Warn("catalog server error",
				"status", resp.StatusCode,
				"method", req.Method,
				"attempt", attempt,
				"maxRetries", maxRetries,
				"path", req.Path,
			)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newRequestError(resp.StatusCode, respBody)
		}

		return respBody, nil
	}

	c.logger.Error("catalog request failed after retries", "error", lastErr, "url", reqURL)
	return nil, lastErr
}

// retryable reports whether a request with method can be repeated safely
func retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// newRequestError extracts the server's message from an error response
func newRequestError(status int, body []byte) *domain.RequestError {
	reqErr := &domain.RequestError{Status: status, Message: http.StatusText(status)}
	if status == http.StatusUnauthorized {
		reqErr.Err = domain.ErrAuthFailed
	}

	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			reqErr.Message = parsed.Message
			return reqErr
		case parsed.Error != "":
			reqErr.Message = parsed.Error
			return reqErr
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		reqErr.Message = text
	}
	if reqErr.Message == "" {
		reqErr.Message = fmt.Sprintf("unexpected status code: %d", status)
	}
	return reqErr
}

// BearerHeader returns the authorization header for token
func BearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
