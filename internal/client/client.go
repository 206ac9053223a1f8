// Package client wires the session manager, media cache and change
// broadcaster into the single object an application holds.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/mediasync/internal/adapter"
	"github.com/mmcdole/mediasync/internal/broadcast"
	"github.com/mmcdole/mediasync/internal/catalog"
	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/search"
	"github.com/mmcdole/mediasync/internal/session"
	"github.com/mmcdole/mediasync/internal/store"
	"github.com/mmcdole/mediasync/internal/transport"
)

// CredentialStore is a domain.CredentialStore the client owns and closes.
type CredentialStore interface {
	domain.CredentialStore
	Close() error
}

// Client is the session-and-cache context for one catalog server. It is
// created with New, resets its cache whenever the session ends, and releases
// everything on Close.
type Client struct {
	store       CredentialStore
	session     *session.Manager
	cache       *catalog.Cache
	broadcaster *broadcast.Broadcaster[domain.MediaCollection]
	logger      *slog.Logger
}

// New builds a Client from configuration.
func New(cfg *adapter.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("server URL is required")
	}

	st, err := store.NewCredentialStore(cfg.Storage.DataDir, cfg.Server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	st.SetLogger(logger)

	tr := transport.NewClient(cfg.Server.URL, logger,
		transport.WithTimeout(cfg.Server.Timeout),
		transport.WithMaxRetries(cfg.Server.MaxRetries),
	)

	return NewWithDeps(st, tr, logger), nil
}

// NewWithDeps builds a Client around existing collaborators.
func NewWithDeps(st CredentialStore, tr domain.Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	b := broadcast.New[domain.MediaCollection]()
	manager := session.NewManager(st, tr, logger)
	cache := catalog.NewCache(manager, tr, b, logger)

	manager.OnLogout(cache.Reset)
	manager.OnLogin(func(ctx context.Context) {
		if _, err := cache.Fetch(ctx); err != nil {
			logger.Warn("refresh after login failed", "error", err)
		}
	})

	return &Client{
		store:       st,
		session:     manager,
		cache:       cache,
		broadcaster: b,
		logger:      logger,
	}
}

// Register creates an account without logging in
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.session.Register(ctx, username, password)
}

// Login starts a session. The media refresh it triggers is reported only
// through Subscribe; Login does not wait for it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.session.Login(ctx, username, password)
}

// Logout ends the session
func (c *Client) Logout(ctx context.Context) (domain.LogoutStatus, error) {
	return c.session.Logout(ctx)
}

// LoggedIn reports whether credentials are stored
func (c *Client) LoggedIn() bool {
	return c.session.LoggedIn()
}

// Username returns the logged in user, if any
func (c *Client) Username() (string, bool) {
	s, ok := c.session.Session()
	return s.Username, ok
}

// Fetch reloads the whole collection
func (c *Client) Fetch(ctx context.Context) (domain.MediaCollection, error) {
	return c.cache.Fetch(ctx)
}

// Add creates a record
func (c *Client) Add(ctx context.Context, record domain.MediaRecord) (domain.MediaRecord, error) {
	return c.cache.Add(ctx, record)
}

// Update changes one or more records
func (c *Client) Update(ctx context.Context, records ...domain.MediaRecord) (domain.RecordPayload, error) {
	return c.cache.Update(ctx, records...)
}

// Delete removes a record
func (c *Client) Delete(ctx context.Context, record domain.MediaRecord) error {
	return c.cache.Delete(ctx, record)
}

// Snapshot returns the cached collection without a request
func (c *Client) Snapshot() domain.MediaCollection {
	return c.cache.Snapshot()
}

// Subscribe delivers every collection change until the returned func is called.
// The current collection is not replayed; read Snapshot for it.
func (c *Client) Subscribe() (<-chan domain.MediaCollection, func()) {
	return c.broadcaster.Subscribe()
}

// Search filters the cached collection by name
func (c *Client) Search(query string) []search.Result {
	return search.Filter(c.cache.Snapshot(), query)
}

// Find resolves a record in the cached collection by name
func (c *Client) Find(name string) (domain.MediaRecord, bool) {
	return search.Closest(c.cache.Snapshot(), name)
}

// Close ends all subscriptions and closes the credential store. The session
// itself stays persisted.
func (c *Client) Close() error {
	c.broadcaster.Close()
	return c.store.Close()
}
