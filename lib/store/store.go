// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the agent's durable state on SQLite: the catch-up
// cursor and the subscribers' notification opt-in flags.
//
// Rows are created by upsert on first write and never deleted. The
// cursor only moves forward: a save lower than the stored value is
// ignored by the database, so a stale writer cannot rewind it.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/rocketbot/rocket/lib/ref"
	"github.com/rocketbot/rocket/lib/sqlitepool"
)

// Migrations is the schema history. Index i moves a database to
// user_version i+1.
var Migrations = []string{
	`CREATE TABLE stats (
		id                 INTEGER PRIMARY KEY CHECK (id = 1),
		last_seen_sequence INTEGER NOT NULL
	);
	CREATE TABLE subscribers (
		id            INTEGER PRIMARY KEY,
		notify_opt_in INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX subscribers_opted_in ON subscribers (id) WHERE notify_opt_in = 1;`,
}

// Config holds the parameters for Open.
type Config struct {
	// Path is the database file. Its directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	Logger *slog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens the database at config.Path and brings its schema up to
// date.
func Open(ctx context.Context, config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       config.Path,
		PoolSize:   config.PoolSize,
		Migrations: Migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// LoadCursor returns the stored cursor. found is false when nothing
// has been saved yet.
func (s *Store) LoadCursor(ctx context.Context) (value int64, found bool, err error) {
	err = s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT last_seen_sequence FROM stats WHERE id = 1`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					value = stmt.ColumnInt64(0)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return 0, false, fmt.Errorf("store: load cursor: %w", err)
	}
	return value, found, nil
}

// SaveCursor records value as the cursor unless the stored cursor is
// already higher.
func (s *Store) SaveCursor(ctx context.Context, value int64) error {
	if value < 0 {
		return fmt.Errorf("store: save cursor: negative value %d", value)
	}
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO stats (id, last_seen_sequence) VALUES (1, ?)
			 ON CONFLICT (id) DO UPDATE
			 SET last_seen_sequence = max(last_seen_sequence, excluded.last_seen_sequence)`,
			&sqlitex.ExecOptions{Args: []any{value}})
	})
	if err != nil {
		return fmt.Errorf("store: save cursor %d: %w", value, err)
	}
	return nil
}

// OptStatus returns whether subscriber opted in. Unknown subscribers
// are opted out.
func (s *Store) OptStatus(ctx context.Context, subscriber ref.Snowflake) (bool, error) {
	var optedIn bool
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT notify_opt_in FROM subscribers WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{subscriber.Int64()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					optedIn = stmt.ColumnBool(0)
					return nil
				},
			})
	})
	if err != nil {
		return false, fmt.Errorf("store: opt status of %s: %w", subscriber, err)
	}
	return optedIn, nil
}

// SetOptStatus upserts one subscriber's flag.
func (s *Store) SetOptStatus(ctx context.Context, subscriber ref.Snowflake, optedIn bool) error {
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return upsertSubscriber(conn, subscriber, optedIn)
	})
	if err != nil {
		return fmt.Errorf("store: set opt status of %s: %w", subscriber, err)
	}
	return nil
}

// SetOptStatuses upserts several flags in one transaction. Either
// every row is written or none is.
func (s *Store) SetOptStatuses(ctx context.Context, statuses map[ref.Snowflake]bool) error {
	if len(statuses) == 0 {
		return nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: set opt statuses: %w", err)
	}
	defer s.pool.Put(conn)

	if err := writeStatuses(conn, statuses); err != nil {
		return fmt.Errorf("store: set %d opt statuses: %w", len(statuses), err)
	}
	return nil
}

func writeStatuses(conn *sqlite.Conn, statuses map[ref.Snowflake]bool) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	// Sorted so the write order, and any error, is reproducible.
	subscribers := make([]ref.Snowflake, 0, len(statuses))
	for subscriber := range statuses {
		subscribers = append(subscribers, subscriber)
	}
	slices.Sort(subscribers)
	for _, subscriber := range subscribers {
		if err := upsertSubscriber(conn, subscriber, statuses[subscriber]); err != nil {
			return err
		}
	}
	return nil
}

func upsertSubscriber(conn *sqlite.Conn, subscriber ref.Snowflake, optedIn bool) error {
	if subscriber.IsZero() {
		return fmt.Errorf("zero subscriber id")
	}
	return sqlitex.Execute(conn,
		`INSERT INTO subscribers (id, notify_opt_in) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET notify_opt_in = excluded.notify_opt_in`,
		&sqlitex.ExecOptions{Args: []any{subscriber.Int64(), optedIn}})
}

// OptedIn lists the subscribers whose flag is set, in ascending order.
func (s *Store) OptedIn(ctx context.Context) ([]ref.Snowflake, error) {
	var subscribers []ref.Snowflake
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id FROM subscribers WHERE notify_opt_in = 1 ORDER BY id`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					subscribers = append(subscribers, ref.Snowflake(stmt.ColumnInt64(0)))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: list opted-in subscribers: %w", err)
	}
	return subscribers, nil
}
