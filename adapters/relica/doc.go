// Package relica provides persistent store implementations using the
// Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database
// query builder for Go with zero production dependencies.
//
// This package provides production-ready implementations of the broker's
// persistence interfaces:
//   - MessageStore (topic log + fan-out queue)
//   - SubscriptionCatalog
//   - TopicRepository
//
// Store contention is translated into the broker's error taxonomy per
// driver: MySQL deadlocks and lock waits, PostgreSQL serialization and
// deadlock failures, and SQLite busy/locked states all surface as
// TRANSIENT_STORE_ERROR so the publish pipeline can retry fan-out.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/pubsub-broker"
//	    "github.com/coregx/pubsub-broker/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/pubsub_db?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create stores (driverName should be "mysql", "postgres", or "sqlite3")
//	stores := relica.NewStores(db, "mysql")
//
//	// Create the publish pipeline
//	pipeline, err := pubsub.NewPipeline(
//	    pubsub.WithStore(stores.Message),
//	    pubsub.WithCatalog(stores.Catalog),
//	    pubsub.WithLogger(logger),
//	)
package relica
