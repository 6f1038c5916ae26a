// Package database provides PostgreSQL connectivity for the BacPipes worker.
//
// This package manages:
//   - Connection establishment via lib/pq with pool tuning
//   - Schema migrations from embedded SQL files
//   - Health checks and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Credentials come from configuration/environment, never source
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Host: cfg.Database.Host,
//	    Port: cfg.Database.Port,
//	    Name: cfg.Database.Name,
//	    User: cfg.Database.User,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Run migrations
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are embedded via the migrations package at the repository
// root; files follow the YYYYMMDD_HHMMSS_description.up.sql naming
// convention. Only forward migrations exist — the schema is co-owned by
// the admin application and is never rolled back by the worker. Runs are
// serialised across processes with a Postgres advisory lock.
package database
