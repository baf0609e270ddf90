// Package cache is a small TTL key/value cache on top of BadgerDB.
//
// It holds generated artifacts that are expensive to recreate, such as TTS
// audio. With a directory configured the cache survives restarts; without
// one it lives in memory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/sakif/vinstackcode/internal/metrics"
)

// DefaultGCInterval is how often Serve runs value-log garbage collection.
const DefaultGCInterval = 10 * time.Minute

// Store is a namespaced TTL cache. Keys are prefixed with the namespace so
// several caches can share one database.
type Store struct {
	db        *badger.DB
	namespace string
	logger    *slog.Logger
}

// Open opens the database at dir, or an in-memory one when dir is empty.
func Open(dir, namespace string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // badger's own logger is noisy; errors come back through return values
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: opening badger at %q: %w", dir, err)
	}
	return &Store{db: db, namespace: namespace, logger: logger}, nil
}

func (s *Store) key(k string) []byte {
	return []byte(s.namespace + ":" + k)
}

// Get returns the value for key and whether it was present and unexpired.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.RecordCacheLookup(s.namespace, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	metrics.RecordCacheLookup(s.namespace, true)
	return out, true, nil
}

// Set stores value under key. A ttl of zero or less keeps it until deleted.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(s.key(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Serve runs value-log GC until ctx is done, so the store can sit in the
// supervisor tree. In-memory stores have no value log and just wait.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(DefaultGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.db.Opts().InMemory {
				continue
			}
			// ErrNoRewrite just means there was nothing worth collecting.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("cache GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}
