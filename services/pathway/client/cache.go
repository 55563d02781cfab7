// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/envitrace/envitrace/pkg/logging"
)

// CacheConfig configures the byte-level response cache shared by all
// resolver sessions.
type CacheConfig struct {
	// Dir is the on-disk location. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the cache in process memory; used by tests and
	// short-lived commands.
	InMemory bool

	// TTL is how long a cached response stays valid. Zero means one
	// hour.
	TTL time.Duration
}

// Cache stores raw server responses keyed by URL. Entries expire after
// the configured TTL; a stale entry reads as a miss.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
	log *logging.Logger
}

// OpenCache opens or creates the cache store.
func OpenCache(cfg CacheConfig, log *logging.Logger) (*Cache, error) {
	if log == nil {
		log = logging.Discard()
	}
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache at %q: %w", cfg.Dir, err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{db: db, ttl: ttl, log: log}, nil
}

// Get returns the cached bytes for key, or false on a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.log.Warn("cache read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}
	return value, true
}

// Set stores bytes under key with the cache TTL.
func (c *Cache) Set(key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache write %q: %w", key, err)
	}
	return nil
}

// Close flushes and closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}
