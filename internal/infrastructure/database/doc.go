// Package database manages the SQLite connection for Pulse Core.
//
// It wraps database/sql with lifecycle management (directory creation,
// WAL mode, busy timeout, file permissions), a simple health check, and
// an embedded-migration runner.
//
// # Migrations
//
// Migration files are embedded into the binary by the top-level
// migrations package and applied on startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil { ... }
//	if err := db.Migrate(ctx); err != nil { ... }
//
// Filenames follow YYYYMMDD_HHMMSS_description.up.sql (with an optional
// matching .down.sql). Each migration runs in its own transaction and is
// recorded in the schema_migrations table.
//
// # Concurrency
//
// The pool is limited to a single open connection: SQLite supports one
// writer at a time, and a single connection serialises writes without
// lock errors. WAL mode keeps reads concurrent with writes.
package database
