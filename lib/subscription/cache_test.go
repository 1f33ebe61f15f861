// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/rocketbot/rocket/lib/ref"
	"github.com/rocketbot/rocket/lib/store"
)

// memoryStore is an in-memory Store that counts calls and can fail
// writes.
type memoryStore struct {
	mu        sync.Mutex
	rows      map[ref.Snowflake]bool
	reads     int
	writes    int
	failWrite error
}

func newMemoryStore(rows map[ref.Snowflake]bool) *memoryStore {
	if rows == nil {
		rows = make(map[ref.Snowflake]bool)
	}
	return &memoryStore{rows: rows}
}

func (m *memoryStore) OptStatus(ctx context.Context, subscriber ref.Snowflake) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.rows[subscriber], nil
}

func (m *memoryStore) SetOptStatus(ctx context.Context, subscriber ref.Snowflake, optedIn bool) error {
	return m.SetOptStatuses(ctx, map[ref.Snowflake]bool{subscriber: optedIn})
}

func (m *memoryStore) SetOptStatuses(ctx context.Context, statuses map[ref.Snowflake]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failWrite != nil {
		return m.failWrite
	}
	for subscriber, optedIn := range statuses {
		m.rows[subscriber] = optedIn
	}
	return nil
}

func (m *memoryStore) OptedIn(ctx context.Context) ([]ref.Snowflake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []ref.Snowflake
	for subscriber, optedIn := range m.rows {
		if optedIn {
			ids = append(ids, subscriber)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memoryStore) row(subscriber ref.Snowflake) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.rows[subscriber]
	return value, ok
}

func newCache(t *testing.T, s Store, mode Mode) *Cache {
	t.Helper()
	cache, err := New(Config{Store: s, Mode: mode})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cache
}

func TestGetReadsStoreOnce(t *testing.T) {
	backing := newMemoryStore(map[ref.Snowflake]bool{7: true})
	cache := newCache(t, backing, WriteBack)
	ctx := context.Background()

	for range 3 {
		optedIn, err := cache.Get(ctx, 7)
		if err != nil || !optedIn {
			t.Fatalf("Get(7) = %v, %v", optedIn, err)
		}
	}
	if optedIn, _ := cache.Get(ctx, 8); optedIn {
		t.Error("unknown subscriber reported opted in")
	}
	if backing.reads != 2 {
		t.Errorf("store reads = %d, want 2", backing.reads)
	}
}

func TestSetIsVisibleImmediately(t *testing.T) {
	for _, mode := range []Mode{WriteBack, WriteThrough} {
		t.Run(mode.String(), func(t *testing.T) {
			backing := newMemoryStore(nil)
			cache := newCache(t, backing, mode)
			ctx := context.Background()

			if err := cache.Set(ctx, 42, true); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if optedIn, err := cache.Get(ctx, 42); err != nil || !optedIn {
				t.Errorf("Get after Set = %v, %v", optedIn, err)
			}
			if backing.reads != 0 {
				t.Errorf("Get after Set read the store %d times", backing.reads)
			}
		})
	}
}

func TestWriteBackDefersToPersist(t *testing.T) {
	backing := newMemoryStore(nil)
	cache := newCache(t, backing, WriteBack)
	ctx := context.Background()

	for _, id := range []ref.Snowflake{1, 2, 3} {
		if err := cache.Set(ctx, id, true); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := cache.Set(ctx, 2, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if backing.writes != 0 {
		t.Fatalf("write-back Set wrote the store %d times", backing.writes)
	}
	if cache.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", cache.Pending())
	}

	if err := cache.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if backing.writes != 1 || cache.Pending() != 0 {
		t.Errorf("writes = %d, pending = %d; want one batch and nothing pending", backing.writes, cache.Pending())
	}
	if value, ok := backing.row(2); !ok || value {
		t.Errorf("row 2 = %v, %v; want stored false", value, ok)
	}
	if err := cache.Persist(ctx); err != nil || backing.writes != 1 {
		t.Errorf("empty Persist = %v with %d writes", err, backing.writes)
	}
}

func TestPersistFailureKeepsPending(t *testing.T) {
	backing := newMemoryStore(nil)
	backing.failWrite = errors.New("disk full")
	cache := newCache(t, backing, WriteBack)
	ctx := context.Background()

	if err := cache.Set(ctx, 5, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.Persist(ctx); err == nil {
		t.Fatal("Persist succeeded against a failing store")
	}
	if cache.Pending() != 1 {
		t.Fatalf("Pending = %d after failure, want 1", cache.Pending())
	}

	backing.failWrite = nil
	if err := cache.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if value, _ := backing.row(5); !value {
		t.Error("retried Persist did not write the change")
	}
}

func TestWriteThroughFailureKeepsValueAndRetries(t *testing.T) {
	backing := newMemoryStore(nil)
	backing.failWrite = errors.New("locked")
	cache := newCache(t, backing, WriteThrough)
	ctx := context.Background()

	if err := cache.Set(ctx, 9, true); err == nil {
		t.Fatal("Set hid a store failure")
	}
	if optedIn, _ := cache.Get(ctx, 9); !optedIn {
		t.Error("cached value lost after a failed write")
	}
	if cache.Pending() != 1 {
		t.Fatalf("Pending = %d, want the failed write kept", cache.Pending())
	}
	backing.failWrite = nil
	if err := cache.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if value, _ := backing.row(9); !value || cache.Pending() != 0 {
		t.Errorf("row = %v, pending = %d", value, cache.Pending())
	}
}

func TestOptedInOverlaysCache(t *testing.T) {
	backing := newMemoryStore(map[ref.Snowflake]bool{10: true, 20: true, 30: false})
	cache := newCache(t, backing, WriteBack)
	ctx := context.Background()

	if err := cache.Set(ctx, 20, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.Set(ctx, 30, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.Set(ctx, 5, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := cache.OptedIn(ctx)
	if err != nil {
		t.Fatalf("OptedIn: %v", err)
	}
	if want := []ref.Snowflake{5, 10, 30}; !slices.Equal(got, want) {
		t.Errorf("OptedIn = %v, want %v", got, want)
	}
}

func TestConcurrentGetSet(t *testing.T) {
	cache := newCache(t, newMemoryStore(nil), WriteBack)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(id ref.Snowflake) {
			defer wg.Done()
			for range 100 {
				if err := cache.Set(ctx, id, true); err != nil {
					t.Errorf("Set: %v", err)
				}
				if optedIn, err := cache.Get(ctx, id); err != nil || !optedIn {
					t.Errorf("Get(%d) = %v, %v", id, optedIn, err)
				}
			}
		}(ref.Snowflake(i))
	}
	wg.Wait()
	if cache.Pending() != 8 {
		t.Errorf("Pending = %d, want 8", cache.Pending())
	}
}

// The recovery tests run against the SQLite store and a second cache
// standing in for the next process.

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: path})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return s
}

func TestRecoveryAfterRestart(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		persist bool
		want    bool
	}{
		{"write_back unpersisted change is lost", WriteBack, false, false},
		{"write_back persisted change survives", WriteBack, true, true},
		{"write_through change survives", WriteThrough, false, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rocket.db")
			ctx := context.Background()

			first := openStore(t, path)
			cache := newCache(t, first, test.mode)
			if err := cache.Set(ctx, 42, true); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if optedIn, _ := cache.Get(ctx, 42); !optedIn {
				t.Fatal("cache does not reflect Set")
			}
			if test.persist {
				if err := cache.Persist(ctx); err != nil {
					t.Fatalf("Persist: %v", err)
				}
			}
			if err := first.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			second := openStore(t, path)
			defer second.Close()
			restarted := newCache(t, second, test.mode)
			optedIn, err := restarted.Get(ctx, 42)
			if err != nil {
				t.Fatalf("Get after restart: %v", err)
			}
			if optedIn != test.want {
				t.Errorf("Get after restart = %v, want %v", optedIn, test.want)
			}
		})
	}
}
