// Package catalog keeps the client's copy of the user's media collection in
// step with server-confirmed mutations and broadcasts every change.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/mmcdole/mediasync/internal/broadcast"
	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/transport"
)

// Session is what the cache needs from the session manager.
type Session interface {
	Session() (domain.Session, bool)
	Translate(op string, err error, onError func()) error
}

// Cache holds the authoritative in-memory collection for the active session.
//
// Results are applied in the order requests were submitted, not the order
// responses arrive. A Reset advances the epoch so responses to requests issued
// before it are never applied.
type Cache struct {
	session     Session
	transport   domain.Transport
	broadcaster *broadcast.Broadcaster[domain.MediaCollection]
	logger      *slog.Logger

	mu      sync.Mutex
	records domain.MediaCollection
	epoch   uint64
	tail    chan struct{}
}

// ticket orders one request against every request submitted before it.
type ticket struct {
	prev  <-chan struct{}
	done  chan struct{}
	epoch uint64
}

// NewCache creates an empty cache publishing to b
func NewCache(s Session, tr domain.Transport, b *broadcast.Broadcaster[domain.MediaCollection], logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	tail := make(chan struct{})
	close(tail)
	return &Cache{
		session:     s,
		transport:   tr,
		broadcaster: b,
		logger:      logger,
		tail:        tail,
	}
}

// Snapshot returns a copy of the cached collection. It is nil until the first
// successful fetch of the session.
func (c *Cache) Snapshot() domain.MediaCollection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records.Clone()
}

// Reset drops the collection and discards results of in-flight requests.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	hadRecords := c.records != nil
	c.records = nil
	if hadRecords {
		c.broadcaster.Publish(nil)
	}
	c.logger.Debug("media cache reset", "epoch", c.epoch)
}

// Fetch replaces the collection with the server's list.
func (c *Cache) Fetch(ctx context.Context) (domain.MediaCollection, error) {
	const op = "fetch"

	s, ok := c.session.Session()
	if !ok {
		return nil, domain.NotLoggedIn(op)
	}

	t := c.enqueue()
	body, err := c.transport.Send(ctx, domain.Request{
		Method: http.MethodGet,
		Path:   mediaPath(s.Username),
		Header: transport.BearerHeader(s.Token),
	})
	if err != nil {
		c.release(t)
		return nil, c.session.Translate(op, err, nil)
	}

	fetched, err := transport.DecodeCollection(body)
	if err != nil {
		c.release(t)
		return nil, c.session.Translate(op, err, nil)
	}
	fetched = c.dedupe(fetched)

	snapshot, applied := c.commit(t, func(domain.MediaCollection) domain.MediaCollection {
		return fetched.Clone()
	})
	if !applied {
		return fetched, nil
	}

	c.logger.Info("fetched media", "count", len(snapshot), "username", s.Username)
	return snapshot, nil
}

// Add creates record on the server and puts the server's copy at the front.
func (c *Cache) Add(ctx context.Context, record domain.MediaRecord) (domain.MediaRecord, error) {
	const op = "add"

	s, ok := c.session.Session()
	if !ok {
		return domain.MediaRecord{}, domain.NotLoggedIn(op)
	}

	t := c.enqueue()
	payload, err := c.put(ctx, s, record)
	if err != nil {
		c.release(t)
		return domain.MediaRecord{}, c.session.Translate(op, err, nil)
	}

	records := payload.Records()
	if len(records) != 1 || records[0].ID == "" {
		c.release(t)
		return domain.MediaRecord{}, c.session.Translate(op,
			fmt.Errorf("expected one created record with an id, got %d", len(records)), nil)
	}
	created := records[0]

	c.commit(t, func(coll domain.MediaCollection) domain.MediaCollection {
		if i := coll.IndexOf(created.ID); i >= 0 {
			coll[i] = created.Clone()
			return coll
		}
		return append(domain.MediaCollection{created.Clone()}, coll...)
	})

	c.logger.Info("added media", "id", created.ID, "name", created.Name)
	return created, nil
}

// Update sends one or many records and replaces cached entries with the
// server's copies. Returned records with no cached counterpart are dropped.
func (c *Cache) Update(ctx context.Context, records ...domain.MediaRecord) (domain.RecordPayload, error) {
	const op = "update"

	s, ok := c.session.Session()
	if !ok {
		return domain.RecordPayload{}, domain.NotLoggedIn(op)
	}
	if len(records) == 0 {
		return domain.RecordPayload{}, &domain.OperationError{
			Op:      op,
			Kind:    domain.KindRequest,
			Message: "no records to update",
		}
	}

	var body any = records
	if len(records) == 1 {
		body = records[0]
	}

	t := c.enqueue()
	payload, err := c.put(ctx, s, body)
	if err != nil {
		c.release(t)
		return domain.RecordPayload{}, c.session.Translate(op, err, nil)
	}

	c.commit(t, func(coll domain.MediaCollection) domain.MediaCollection {
		for _, updated := range payload.Records() {
			i := coll.IndexOf(updated.ID)
			if i < 0 {
				c.logger.Debug("dropping update for uncached record", "id", updated.ID)
				continue
			}
			coll[i] = updated.Clone()
		}
		return coll
	})

	c.logger.Info("updated media", "count", len(payload.Records()))
	return payload, nil
}

// Delete removes record on the server and then from the cache.
func (c *Cache) Delete(ctx context.Context, record domain.MediaRecord) error {
	const op = "delete"

	s, ok := c.session.Session()
	if !ok {
		return domain.NotLoggedIn(op)
	}
	if record.ID == "" {
		return &domain.OperationError{Op: op, Kind: domain.KindRequest, Message: "record has no id"}
	}

	t := c.enqueue()
	_, err := c.transport.Send(ctx, domain.Request{
		Method: http.MethodDelete,
		Path:   mediaPath(s.Username),
		Header: transport.BearerHeader(s.Token),
		Body:   map[string]string{"id": record.ID},
	})
	if err != nil {
		c.release(t)
		return c.session.Translate(op, err, nil)
	}

	c.commit(t, func(coll domain.MediaCollection) domain.MediaCollection {
		i := coll.IndexOf(record.ID)
		if i < 0 {
			return coll
		}
		return append(coll[:i:i], coll[i+1:]...)
	})

	c.logger.Info("deleted media", "id", record.ID)
	return nil
}

func (c *Cache) put(ctx context.Context, s domain.Session, body any) (domain.RecordPayload, error) {
	resp, err := c.transport.Send(ctx, domain.Request{
		Method: http.MethodPut,
		Path:   mediaPath(s.Username),
		Header: transport.BearerHeader(s.Token),
		Body:   body,
	})
	if err != nil {
		return domain.RecordPayload{}, err
	}
	return transport.DecodeRecordPayload(resp)
}

func (c *Cache) enqueue() ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := ticket{prev: c.tail, done: make(chan struct{}), epoch: c.epoch}
	c.tail = t.done
	return t
}

// commit waits for every earlier ticket, applies fn and broadcasts the result.
// It reports false when the session was reset after t was issued.
func (c *Cache) commit(t ticket, fn func(domain.MediaCollection) domain.MediaCollection) (domain.MediaCollection, bool) {
	defer close(t.done)
	<-t.prev

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.epoch != c.epoch {
		c.logger.Debug("discarding result from previous session", "epoch", t.epoch)
		return nil, false
	}

	c.records = fn(c.records)
	if c.records == nil {
		c.records = domain.MediaCollection{}
	}
	snapshot := c.records.Clone()
	c.broadcaster.Publish(snapshot.Clone())
	return snapshot, true
}

// release gives up t's turn without blocking the caller.
func (c *Cache) release(t ticket) {
	go func() {
		<-t.prev
		close(t.done)
	}()
}

func (c *Cache) dedupe(coll domain.MediaCollection) domain.MediaCollection {
	seen := make(map[string]struct{}, len(coll))
	out := coll[:0:0]
	for _, r := range coll {
		if _, dup := seen[r.ID]; dup {
			c.logger.Warn("server returned duplicate record", "id", r.ID)
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func mediaPath(username string) string {
	return "/user/" + url.PathEscape(username) + "/media"
}

// IsNotLoggedIn reports whether err is the cache's precondition failure.
func IsNotLoggedIn(err error) bool {
	return errors.Is(err, domain.ErrNotLoggedIn)
}
