// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for Open. Path is required.
type Config struct {
	// Path is the database file, created if missing. ":memory:" is
	// accepted only with PoolSize 1, since each in-memory connection
	// is a separate database.
	Path string

	// PoolSize defaults to 4. SQLite serializes writers regardless;
	// extra connections only help concurrent readers.
	PoolSize int

	// Migrations are applied in order; index i moves the schema to
	// user_version i+1.
	Migrations []string

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Pool is safe for concurrent use. Connections are not: each goroutine
// takes its own and puts it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Open creates the pool and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	if cfg.Path == ":memory:" && poolSize != 1 {
		return nil, fmt.Errorf("sqlitepool: in-memory databases require PoolSize 1")
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	pool := &Pool{inner: inner, logger: logger, path: cfg.Path}

	if err := pool.migrate(ctx, cfg.Migrations); err != nil {
		inner.Close()
		return nil, err
	}
	logger.Info("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)
	return pool, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
// The caller must Put it back.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) { p.inner.Put(conn) }

// With runs fn on a borrowed connection.
func (p *Pool) With(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// Close waits for borrowed connections and closes the pool.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close failed", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// SchemaVersion returns the database's user_version.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := p.With(ctx, func(conn *sqlite.Conn) error {
		var err error
		version, err = userVersion(conn)
		return err
	})
	return version, err
}

func (p *Pool) migrate(ctx context.Context, migrations []string) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin migration: %w", err)
	}
	defer endFn(&err)

	current, err := userVersion(conn)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("sqlitepool: %s has schema version %d, newer than this binary's %d", p.path, current, len(migrations))
	}
	for index := current; index < len(migrations); index++ {
		if err := sqlitex.ExecuteScript(conn, migrations[index], nil); err != nil {
			return fmt.Errorf("sqlitepool: migration %d: %w", index+1, err)
		}
		p.logger.Info("applied schema migration", "path", p.path, "version", index+1)
	}
	if current == len(migrations) {
		return nil
	}
	// PRAGMA arguments cannot be bound parameters.
	setVersion := fmt.Sprintf("PRAGMA user_version = %d", len(migrations))
	if err := sqlitex.ExecuteTransient(conn, setVersion, nil); err != nil {
		return fmt.Errorf("sqlitepool: %s: %w", setVersion, err)
	}
	return nil
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return nil
}
