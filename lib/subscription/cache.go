// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package subscription caches subscribers' notification opt-in flags
// in front of the durable store.
//
// Reads are served from memory once a subscriber has been read or
// written in this process; the first read of anyone else goes to the
// store. Writes update memory first, so a Get after a Set always sees
// the new value. When the store is written depends on the [Mode]:
// [WriteThrough] upserts on every Set, [WriteBack] collects changes
// until [Cache.Persist], which the catch-up poller calls once per
// cycle.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/rocketbot/rocket/lib/ref"
)

// Mode selects when changes reach the store.
type Mode int

const (
	// WriteBack defers store writes to Persist.
	WriteBack Mode = iota
	// WriteThrough writes the store inside Set.
	WriteThrough
)

func (m Mode) String() string {
	switch m {
	case WriteBack:
		return "write_back"
	case WriteThrough:
		return "write_through"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Store is the durable side of the cache. *store.Store implements it.
type Store interface {
	OptStatus(ctx context.Context, subscriber ref.Snowflake) (bool, error)
	SetOptStatus(ctx context.Context, subscriber ref.Snowflake, optedIn bool) error
	SetOptStatuses(ctx context.Context, statuses map[ref.Snowflake]bool) error
	OptedIn(ctx context.Context) ([]ref.Snowflake, error)
}

// Config configures a Cache.
type Config struct {
	Store  Store
	Mode   Mode
	Logger *slog.Logger
}

// Cache is safe for concurrent use.
type Cache struct {
	store  Store
	mode   Mode
	logger *slog.Logger

	// writeMu orders store writes so the store ends in the state of
	// the last Set.
	writeMu sync.Mutex

	mu      sync.RWMutex
	values  map[ref.Snowflake]bool
	pending map[ref.Snowflake]bool
}

// New returns an empty cache over config.Store.
func New(config Config) (*Cache, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("subscription: Store is required")
	}
	if config.Mode != WriteBack && config.Mode != WriteThrough {
		return nil, fmt.Errorf("subscription: unknown mode %d", config.Mode)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		store:   config.Store,
		mode:    config.Mode,
		logger:  logger,
		values:  make(map[ref.Snowflake]bool),
		pending: make(map[ref.Snowflake]bool),
	}, nil
}

// Mode returns the persistence mode.
func (c *Cache) Mode() Mode { return c.mode }

// Get returns whether subscriber opted in, reading the store only on
// the first access. Get never waits for a store write.
func (c *Cache) Get(ctx context.Context, subscriber ref.Snowflake) (bool, error) {
	c.mu.RLock()
	value, ok := c.values[subscriber]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	stored, err := c.store.OptStatus(ctx, subscriber)
	if err != nil {
		return false, fmt.Errorf("subscription: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A Set that landed while the store was being read wins.
	if value, ok := c.values[subscriber]; ok {
		return value, nil
	}
	c.values[subscriber] = stored
	return stored, nil
}

// Set records subscriber's flag. The cached value changes before Set
// returns in either mode. In write-through mode a store failure is
// returned and the change is kept for the next Persist.
func (c *Cache) Set(ctx context.Context, subscriber ref.Snowflake, optedIn bool) error {
	if subscriber.IsZero() {
		return fmt.Errorf("subscription: zero subscriber id")
	}
	if c.mode == WriteBack {
		c.mu.Lock()
		c.values[subscriber] = optedIn
		c.pending[subscriber] = optedIn
		c.mu.Unlock()
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	c.values[subscriber] = optedIn
	c.mu.Unlock()

	if err := c.store.SetOptStatus(ctx, subscriber, optedIn); err != nil {
		c.mu.Lock()
		c.pending[subscriber] = optedIn
		c.mu.Unlock()
		return fmt.Errorf("subscription: %w", err)
	}
	c.mu.Lock()
	delete(c.pending, subscriber)
	c.mu.Unlock()
	return nil
}

// Pending is the number of changes not yet in the store.
func (c *Cache) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// Persist writes every pending change in one store transaction. On
// failure the changes stay pending. Changes made while Persist runs
// are kept for the next call.
func (c *Cache) Persist(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	batch := maps.Clone(c.pending)
	c.mu.RUnlock()
	if len(batch) == 0 {
		return nil
	}

	if err := c.store.SetOptStatuses(ctx, batch); err != nil {
		return fmt.Errorf("subscription: persisting %d changes: %w", len(batch), err)
	}

	c.mu.Lock()
	for subscriber, written := range batch {
		if current, ok := c.pending[subscriber]; ok && current == written {
			delete(c.pending, subscriber)
		}
	}
	c.mu.Unlock()
	c.logger.Debug("subscription changes persisted", "count", len(batch))
	return nil
}

// OptedIn lists every opted-in subscriber in ascending order: the
// store's list corrected by the cached values, so pending changes
// count.
func (c *Cache) OptedIn(ctx context.Context) ([]ref.Snowflake, error) {
	stored, err := c.store.OptedIn(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}

	set := make(map[ref.Snowflake]bool, len(stored))
	for _, subscriber := range stored {
		set[subscriber] = true
	}
	c.mu.RLock()
	for subscriber, optedIn := range c.values {
		if optedIn {
			set[subscriber] = true
		} else {
			delete(set, subscriber)
		}
	}
	c.mu.RUnlock()

	return slices.Sorted(maps.Keys(set)), nil
}
