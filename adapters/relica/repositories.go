package relica

import (
	"database/sql"

	pubsub "github.com/coregx/pubsub-broker"
)

// Stores holds all persistent store implementations.
type Stores struct {
	Message pubsub.MessageStore
	Catalog pubsub.SubscriptionCatalog
	Topic   pubsub.TopicRepository
}

// NewStores creates all store implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "pubsub_" but can be customized.
func NewStores(db *sql.DB, driverName string) *Stores {
	return &Stores{
		Message: NewMessageStore(db, driverName),
		Catalog: NewSubscriptionCatalog(db, driverName),
		Topic:   NewTopicRepository(db, driverName),
	}
}

// NewStoresWithPrefix creates all store implementations with a custom table prefix.
func NewStoresWithPrefix(db *sql.DB, driverName, prefix string) *Stores {
	return &Stores{
		Message: NewMessageStoreWithPrefix(db, driverName, prefix),
		Catalog: NewSubscriptionCatalogWithPrefix(db, driverName, prefix),
		Topic:   NewTopicRepositoryWithPrefix(db, driverName, prefix),
	}
}
