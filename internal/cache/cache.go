package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"savoro/internal/config"
)

// Store is the key/value contract the read paths depend on. Implementations
// are best effort: a failing Set or Delete must never break the request that
// triggered it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Badger is a Store backed by an embedded badger database.
type Badger struct {
	db *badger.DB
}

// Open initialises the badger store described by cfg. In-memory mode is used
// by tests and by deployments that treat the cache as purely ephemeral.
func Open(cfg config.CacheConfig) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close releases the underlying badger database.
func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Get returns the cached value for key, or false on a miss.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool) {
	if b == nil || b.db == nil {
		return nil, false
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		// Read failures count as misses so callers fall back to the database.
		return nil, false
	}
	return value, true
}

// Set stores value under key for the given ttl.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if b == nil || b.db == nil {
		return errors.New("cache store not configured")
	}

	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes key from the store. Deleting an absent key is not an error.
func (b *Badger) Delete(ctx context.Context, key string) error {
	if b == nil || b.db == nil {
		return errors.New("cache store not configured")
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}
