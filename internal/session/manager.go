// Package session owns the authenticated identity of the user: register,
// login and logout against the catalog server, credential persistence, and
// the forced logout that follows an authorization failure.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/transport"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AuthToken string `json:"auth_token"`
}

// Manager tracks the current session. Whether a user is logged in is derived
// from the credential store; the in-memory copy only saves store reads when
// building requests.
type Manager struct {
	store     domain.CredentialStore
	transport domain.Transport
	logger    *slog.Logger

	mu      sync.RWMutex
	session domain.Session

	hookMu      sync.Mutex
	loginHooks  []func(context.Context)
	logoutHooks []func()
}

// NewManager creates a Manager and restores any session persisted in store.
func NewManager(store domain.CredentialStore, tr domain.Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, transport: tr, logger: logger}

	username, _ := store.Get(domain.KeyUsername)
	token, _ := store.Get(domain.KeyAuthToken)
	m.session = domain.Session{Username: username, Token: token}
	if m.session.Active() {
		logger.Info("restored session", "username", username)
	}
	return m
}

// OnLogin registers fn to run after every successful login. Hooks run in
// their own goroutine; Login does not wait for them.
func (m *Manager) OnLogin(fn func(ctx context.Context)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.loginHooks = append(m.loginHooks, fn)
}

// OnLogout registers fn to run synchronously whenever an active session is cleared.
func (m *Manager) OnLogout(fn func()) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.logoutHooks = append(m.logoutHooks, fn)
}

// LoggedIn reports whether both a token and a username are stored.
func (m *Manager) LoggedIn() bool {
	token, ok := m.store.Get(domain.KeyAuthToken)
	if !ok || token == "" {
		return false
	}
	username, ok := m.store.Get(domain.KeyUsername)
	return ok && username != ""
}

// Session returns the active credentials.
func (m *Manager) Session() (domain.Session, bool) {
	if !m.LoggedIn() {
		return domain.Session{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.Active() {
		return domain.Session{}, false
	}
	return m.session, true
}

// Register creates an account. It never logs the user in.
func (m *Manager) Register(ctx context.Context, username, password string) error {
	_, err := m.transport.Send(ctx, domain.Request{
		Method: http.MethodPost,
		Path:   "/register",
		Body:   credentials{Username: username, Password: password},
	})
	if err != nil {
		return m.Translate("register", err, nil)
	}

	m.logger.Info("registered user", "username", username)
	return nil
}

// Login authenticates and persists the session, then starts the login hooks
// in the background. A session that was already active is ended first and
// its logout hooks run. Any failure leaves the manager logged out.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	body, err := m.transport.Send(ctx, domain.Request{
		Method: http.MethodPost,
		Path:   "/login",
		Body:   credentials{Username: username, Password: password},
	})
	if err != nil {
		return m.Translate("login", err, m.clear)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.AuthToken == "" {
		m.clear()
		m.logger.Error("login response did not include a token", "username", username, "error", err)
		return &domain.OperationError{
			Op:      "login",
			Kind:    domain.KindRequest,
			Message: "login response did not include a token",
			Err:     err,
		}
	}

	// A new login replaces the current session, so end it before storing
	// the new one.
	if m.LoggedIn() {
		m.clear()
	}

	if err := m.persist(username, resp.AuthToken); err != nil {
		m.clear()
		m.logger.Error("failed to persist session", "username", username, "error", err)
		return &domain.OperationError{
			Op:      "login",
			Kind:    domain.KindStorage,
			Message: "failed to save session: " + err.Error(),
			Err:     err,
		}
	}

	m.mu.Lock()
	m.session = domain.Session{Username: username, Token: resp.AuthToken}
	m.mu.Unlock()

	m.logger.Info("logged in", "username", username)

	m.hookMu.Lock()
	hooks := append([]func(context.Context){}, m.loginHooks...)
	m.hookMu.Unlock()

	detached := context.WithoutCancel(ctx)
	for _, hook := range hooks {
		go hook(detached)
	}
	return nil
}

// Logout ends the session on the server and always clears it locally.
// When no session exists it returns AlreadyLoggedOut without a request.
func (m *Manager) Logout(ctx context.Context) (domain.LogoutStatus, error) {
	s, ok := m.Session()
	if !ok {
		return domain.AlreadyLoggedOut, nil
	}

	_, err := m.transport.Send(ctx, domain.Request{
		Method: http.MethodGet,
		Path:   "/logout",
		Header: transport.BearerHeader(s.Token),
	})
	if err != nil {
		return domain.LoggedOut, m.Translate("logout", err, m.clear)
	}

	m.clear()
	m.logger.Info("logged out", "username", s.Username)
	return domain.LoggedOut, nil
}

// ForceLogout drops the session without contacting the server.
func (m *Manager) ForceLogout() {
	m.clear()
}

func (m *Manager) persist(username, token string) error {
	if err := m.store.Set(domain.KeyUsername, username); err != nil {
		return err
	}
	return m.store.Set(domain.KeyAuthToken, token)
}

// clear removes the session from the store and memory. Logout hooks only run
// if there was a session to clear.
func (m *Manager) clear() {
	m.mu.Lock()
	wasActive := m.session.Active()
	m.session = domain.Session{}
	m.mu.Unlock()

	if _, ok := m.store.Get(domain.KeyAuthToken); ok {
		wasActive = true
	}

	if err := m.store.Remove(domain.KeyAuthToken); err != nil {
		m.logger.Error("failed to remove token", "error", err)
	}
	if err := m.store.Remove(domain.KeyUsername); err != nil {
		m.logger.Error("failed to remove username", "error", err)
	}

	if !wasActive {
		return
	}

	m.hookMu.Lock()
	hooks := append([]func(){}, m.logoutHooks...)
	m.hookMu.Unlock()
	for _, hook := range hooks {
		hook()
	}
}
