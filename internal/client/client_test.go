package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mmcdole/mediasync/internal/adapter"
	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/store"
	"github.com/mmcdole/mediasync/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogServer is an in-memory implementation of the catalog HTTP API.
type catalogServer struct {
	mu       sync.Mutex
	users    map[string]string
	tokens   map[string]string // token -> username
	media    map[string][]domain.MediaRecord
	nextID   int
	logouts  int
	tokenSeq int
}

func newCatalogServer() *catalogServer {
	return &catalogServer{
		users:  map[string]string{},
		tokens: map[string]string{},
		media:  map[string][]domain.MediaRecord{},
	}
}

func (s *catalogServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.authed(s.logout)).Methods(http.MethodGet)
	r.HandleFunc("/user/{username}/media", s.authed(s.list)).Methods(http.MethodGet)
	r.HandleFunc("/user/{username}/media", s.authed(s.put)).Methods(http.MethodPut)
	r.HandleFunc("/user/{username}/media", s.authed(s.remove)).Methods(http.MethodDelete)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *catalogServer) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		user, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}
		if name, has := mux.Vars(r)["username"]; has && name != user {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "forbidden"})
			return
		}
		next(w, r, user)
	}
}

func (s *catalogServer) register(w http.ResponseWriter, r *http.Request) {
	var body struct{ Username, Password string }
	json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Username]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "username taken"})
		return
	}
	s.users[body.Username] = body.Password
	writeJSON(w, http.StatusOK, "success")
}

func (s *catalogServer) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Username, Password string }
	json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if pw, ok := s.users[body.Username]; !ok || pw != body.Password {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "bad credentials"})
		return
	}
	s.tokenSeq++
	token := fmt.Sprintf("T%d", s.tokenSeq)
	s.tokens[token] = body.Username
	writeJSON(w, http.StatusOK, map[string]string{"auth_token": token})
}

func (s *catalogServer) logout(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s.logouts++
	writeJSON(w, http.StatusOK, "success")
}

func (s *catalogServer) list(w http.ResponseWriter, _ *http.Request, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.media[user]
	if items == nil {
		items = []domain.MediaRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *catalogServer) put(w http.ResponseWriter, r *http.Request, user string) {
	var raw json.RawMessage
	json.NewDecoder(r.Body).Decode(&raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	upsert := func(rec domain.MediaRecord) domain.MediaRecord {
		if rec.ID == "" {
			s.nextID++
			rec.ID = fmt.Sprint(s.nextID)
			s.media[user] = append([]domain.MediaRecord{rec}, s.media[user]...)
			return rec
		}
		for i := range s.media[user] {
			if s.media[user][i].ID == rec.ID {
				s.media[user][i] = rec
			}
		}
		return rec
	}

	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var recs []domain.MediaRecord
		json.Unmarshal(raw, &recs)
		for i := range recs {
			recs[i] = upsert(recs[i])
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	var rec domain.MediaRecord
	json.Unmarshal(raw, &rec)
	writeJSON(w, http.StatusOK, upsert(rec))
}

func (s *catalogServer) remove(w http.ResponseWriter, r *http.Request, user string) {
	var body struct {
		ID string `json:"id"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.media[user][:0]
	for _, rec := range s.media[user] {
		if rec.ID != body.ID {
			items = append(items, rec)
		}
	}
	s.media[user] = items
	writeJSON(w, http.StatusOK, "success")
}

func (s *catalogServer) expireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

func newTestClient(t *testing.T, srv *catalogServer, dataDir string) *Client {
	t.Helper()
	ts := httptest.NewServer(srv.router())
	t.Cleanup(ts.Close)

	cfg := adapter.DefaultConfig()
	cfg.Server.URL = ts.URL
	cfg.Server.MaxRetries = 0
	cfg.Storage.DataDir = dataDir

	c, err := New(cfg, adapter.NullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func await(t *testing.T, ch <-chan domain.MediaCollection) domain.MediaCollection {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

func names(c domain.MediaCollection) []string {
	out := make([]string, len(c))
	for i, r := range c {
		out[i] = r.Name
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	srv := newCatalogServer()
	srv.users["alice"] = "pw"
	srv.media["alice"] = []domain.MediaRecord{{ID: "1", Name: "Song A"}}
	srv.nextID = 1

	c := newTestClient(t, srv, "")
	ctx := context.Background()

	updates, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Login(ctx, "alice", "pw"))
	assert.True(t, c.LoggedIn())

	// Login's refresh shows up on the broadcaster, not in Login's result
	assert.Equal(t, []string{"Song A"}, names(await(t, updates)))

	coll, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Song A"}, names(coll))
	await(t, updates)

	created, err := c.Add(ctx, domain.MediaRecord{Name: "Song B"})
	require.NoError(t, err)
	assert.Equal(t, "2", created.ID)
	assert.Equal(t, []string{"Song B", "Song A"}, names(await(t, updates)))

	song, ok := c.Find("song a")
	require.True(t, ok)
	require.NoError(t, c.Delete(ctx, song))
	assert.Equal(t, domain.MediaCollection{{ID: "2", Name: "Song B"}}, await(t, updates))
	assert.Equal(t, domain.MediaCollection{{ID: "2", Name: "Song B"}}, c.Snapshot())

	status, err := c.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LoggedOut, status)
	assert.Nil(t, await(t, updates))
	assert.Nil(t, c.Snapshot())

	status, err = c.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyLoggedOut, status)
	assert.Equal(t, 1, srv.logouts)
}

func TestRegisterThenLogin(t *testing.T) {
	srv := newCatalogServer()
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "bob", "secret"))
	assert.False(t, c.LoggedIn())

	err := c.Register(ctx, "bob", "secret")
	require.Error(t, err)
	assert.Equal(t, "username taken", err.Error())

	err = c.Login(ctx, "bob", "wrong")
	require.Error(t, err)
	assert.Equal(t, "bad credentials", err.Error())
	assert.False(t, c.LoggedIn())

	require.NoError(t, c.Login(ctx, "bob", "secret"))
	user, ok := c.Username()
	assert.True(t, ok)
	assert.Equal(t, "bob", user)
}

func TestExpiredTokenLogsOut(t *testing.T) {
	srv := newCatalogServer()
	srv.users["alice"] = "pw"
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	updates, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Login(ctx, "alice", "pw"))
	await(t, updates)

	srv.expireTokens()
	_, err := c.Update(ctx, domain.MediaRecord{ID: "1", Name: "x"})
	require.Error(t, err)
	kind, _ := domain.KindOf(err)
	assert.Equal(t, domain.KindAuth, kind)
	assert.False(t, c.LoggedIn())

	_, err = c.Fetch(ctx)
	kind, _ = domain.KindOf(err)
	assert.Equal(t, domain.KindNotLoggedIn, kind)
}

func TestSessionSurvivesRestart(t *testing.T) {
	srv := newCatalogServer()
	srv.users["alice"] = "pw"
	dir := t.TempDir()

	ts := httptest.NewServer(srv.router())
	defer ts.Close()

	cfg := adapter.DefaultConfig()
	cfg.Server.URL = ts.URL
	cfg.Storage.DataDir = dir

	first, err := New(cfg, adapter.NullLogger())
	require.NoError(t, err)
	require.NoError(t, first.Login(context.Background(), "alice", "pw"))
	// Let the detached refresh finish before closing the store
	_, err = first.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(cfg, adapter.NullLogger())
	require.NoError(t, err)
	defer second.Close()

	assert.True(t, second.LoggedIn())
	_, err = second.Fetch(context.Background())
	assert.NoError(t, err)
}

func TestNewRequiresServerURL(t *testing.T) {
	_, err := New(adapter.DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = New(nil, nil)
	assert.Error(t, err)
}

// loginAs answers POST /login with a token derived from the posted username.
func loginAs(tr *transporttest.Transport) {
	tr.Handle(http.MethodPost, "/login", func(req domain.Request) ([]byte, error) {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		var body struct{ Username string }
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"auth_token": "tok-" + body.Username})
	})
}

func waitForRequest(t *testing.T, tr *transporttest.Transport, method, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tr.Count(method, path) > 0
	}, time.Second, 5*time.Millisecond, "no %s %s", method, path)
}

func TestLoginAsAnotherUserResetsCache(t *testing.T) {
	tr := transporttest.New()
	loginAs(tr)
	tr.Reply(http.MethodGet, "/user/alice/media", []domain.MediaRecord{{ID: "1", Name: "Alice Song"}})
	tr.Fail(http.MethodGet, "/user/bob/media", http.StatusInternalServerError, "boom")

	entered := make(chan struct{})
	release := make(chan struct{})
	tr.Handle(http.MethodPut, "/user/alice/media", func(domain.Request) ([]byte, error) {
		close(entered)
		<-release
		return json.Marshal(domain.MediaRecord{ID: "2", Name: "Late Alice Song"})
	})

	c := NewWithDeps(store.NewMemoryStore(), tr, nil)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, "alice", "pw"))
	waitForRequest(t, tr, http.MethodGet, "/user/alice/media")
	_, err := c.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, c.Snapshot(), 1)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	added := make(chan error, 1)
	go func() {
		_, err := c.Add(ctx, domain.MediaRecord{Name: "Late Alice Song"})
		added <- err
	}()
	<-entered

	require.NoError(t, c.Login(ctx, "bob", "pw"))
	name, ok := c.Username()
	require.True(t, ok)
	assert.Equal(t, "bob", name)
	assert.Nil(t, c.Snapshot())

	select {
	case coll := <-updates:
		assert.Nil(t, coll)
	case <-time.After(time.Second):
		t.Fatal("no broadcast after switching users")
	}

	close(release)
	select {
	case err := <-added:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("add did not complete")
	}

	waitForRequest(t, tr, http.MethodGet, "/user/bob/media")
	assert.Nil(t, c.Snapshot())
	select {
	case coll := <-updates:
		t.Fatalf("unexpected broadcast %v", coll)
	default:
	}
}
