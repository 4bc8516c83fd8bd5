// Package database provides SQLite database connectivity for Clocked Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Credential material is stored hashed, never raw
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
