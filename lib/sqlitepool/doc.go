// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a pool of SQLite connections with the
// agent's standard pragmas and brings the schema up to date.
//
// The schema is an ordered list of migration scripts. Open applies
// every script past the database's PRAGMA user_version inside one
// immediate transaction, then records the new version, so reopening an
// existing file is a no-op and a partially applied migration never
// persists.
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:       "rocket.db",
//	    Migrations: []string{schemaV1},
//	})
//	err = pool.With(ctx, func(conn *sqlite.Conn) error { ... })
//
// Built on zombiezen.com/go/sqlite (pure Go, no cgo).
package sqlitepool
