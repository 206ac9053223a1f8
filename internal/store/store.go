package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/mediasync/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var bucketCredentials = []byte("credentials")

// CredentialStore implements domain.CredentialStore using BoltDB.
// Values are kept in memory as well so reads never touch disk after the first hit.
type CredentialStore struct {
	db     *bolt.DB
	mu     sync.RWMutex
	logger *slog.Logger

	cache map[string]string
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore opens the store under baseDir. Credentials for different
// servers live in separate databases. An empty baseDir gives a memory-only store.
func NewCredentialStore(baseDir, serverURL string) (*CredentialStore, error) {
	if baseDir == "" {
		return NewMemoryStore(), nil
	}

	dir := baseDir
	if serverURL != "" {
		dir = filepath.Join(baseDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "credentials.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &CredentialStore{db: db, logger: slog.Default(), cache: make(map[string]string)}, nil
}

// NewMemoryStore returns a store that does not persist anything.
func NewMemoryStore() *CredentialStore {
	return &CredentialStore{logger: slog.Default(), cache: make(map[string]string)}
}

// SetLogger replaces the logger used to report read failures
func (s *CredentialStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *CredentialStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *CredentialStore) Get(key string) (string, bool) {
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v, true
	}
	s.mu.RUnlock()

	if s.db == nil {
		return "", false
	}

	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCredentials).Get([]byte(key)); v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to read credential", "key", key, "error", err)
		return "", false
	}

	if !found {
		return "", false
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	return value, true
}

func (s *CredentialStore) Set(key, value string) error {
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketCredentials).Put([]byte(key), []byte(value))
		})
		if err != nil {
			return fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) Remove(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCredentials).Delete([]byte(key))
	})
}

// Clear removes every stored credential.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		var keys [][]byte
		err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
