// Package database provides SQLite connectivity for the channel key store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (embedded by package migrations)
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - Channel keys are stored in plain text; the file is created 0600
//   - All queries use parameterised statements
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// The path ":memory:" opens a private in-memory database, used by tests.
package database
