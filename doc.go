// Package pubsub implements an embeddable publish/subscribe broker for Go
// with topic-pattern authorization, guaranteed delivery and a REST gateway.
//
// Works both as a library for embedding in your application AND as a
// standalone broker with a REST API.
//
// # Features
//
//   - Deadlock-safe publish pipeline: topic log insert plus per-subscriber
//     fan-out with bounded retry on store contention
//   - In-memory subscription registry indexed by topic and principal
//   - Pattern matcher ("pub=orders.*", "sub=invoices.**") with a
//     per-client evaluation cache
//   - REST gateway: Basic auth, pattern authorization, input validation,
//     publish and pull endpoints (Echo)
//   - Bounded broker connection pool for relaying to NATS JetStream
//   - Pull delivery from the broker or straight from the durable queue
//   - Push delivery worker posting queued messages to REST endpoints
//   - Change notifications over Watermill for registry synchronization
//   - Options Pattern for service configuration
//   - Pluggable architecture: bring your own Logger, MessageStore, broker
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded Migrations for easy database setup
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
// First, apply the database migrations:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/pubsub-broker"
//	    "github.com/coregx/pubsub-broker/adapters/relica"
//	    "github.com/coregx/pubsub-broker/migrations"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Connect to database
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/pubsub?parseTime=true")
//
//	// Apply embedded migrations
//	if err := migrations.ApplyAll(db); err != nil {
//	    log.Fatal(err)
//	}
//
// Wire the pipeline with the Relica-backed stores:
//
//	stores := relica.NewStores(db, "mysql")
//
//	registry := pubsub.NewSubscriptionRegistry(logger)
//	pipeline, _ := pubsub.NewPipeline(
//	    pubsub.WithStore(stores.Message),
//	    pubsub.WithCatalog(stores.Catalog),
//	    pubsub.WithLogger(logger),
//	)
//
// Publish a message to every current subscriber of a topic:
//
//	topic := registry.EnsureTopic("orders.created")
//	msg := model.NewPubSubMessage(topic, `{"order_id": 123}`)
//	subs := registry.GetSubscriptionsByTopic("orders.created")
//
//	result, err := pipeline.Publish(ctx, topic, []model.PubSubMessage{msg}, subs)
//
// # Option 2: As Standalone Broker
//
// Run the broker binary and talk to it over REST:
//
//	go run ./cmd/pubsub-broker
//
//	# Publish
//	curl -X POST http://localhost:8080/api/v1/pubsub/publish/orders.created \
//	  -u alice:secret \
//	  -H "Content-Type: application/json" \
//	  -d '{"data":{"order_id":123},"priority":5}'
//
//	# Pull
//	curl http://localhost:8080/api/v1/pubsub/messages/get -u alice:secret
//
//	# Health check
//	curl http://localhost:8080/api/v1/pubsub/health
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          REST Gateway               │
//	│  (auth → authorization → validate)  │
//	└─────────────┬───────────────────────┘
//	              │
//	┌─────────────▼───────────────────────┐
//	│        Publish Pipeline             │
//	│  (topic log + fan-out with retry)   │
//	└──────┬───────────────────┬──────────┘
//	       │                   │
//	┌──────▼─────────┐  ┌──────▼──────────┐
//	│ Relica Stores  │  │  Broker Pool    │
//	│ (MySQL/PG/     │  │ (NATS JetStream)│
//	│  SQLite)       │  └─────────────────┘
//	└────────────────┘
//
// Key pieces:
//   - SubscriptionRegistry holds the live topic and subscription state;
//     the SubscriptionCatalog persists it
//   - PatternMatcher decides publish/subscribe permissions per client
//   - Pipeline retries fan-out on transient store errors and re-checks
//     surviving subscribers between attempts
//   - DeliveryWorker drains the durable queue for push subscriptions
//   - WatermillNotifier broadcasts registry changes to other nodes
//
// # Message Flow
//
//  1. PUBLISH
//     Gateway → authenticate → authorize against pub patterns
//     → Pipeline: insert into topic log
//     → fan out one queue row per matching subscription
//     → relay to the broker for pull consumers
//
//  2. PULL
//     Gateway → authenticate → look up the caller's subscription
//     → fetch from the broker (or the durable queue)
//     → transform to response envelopes, acknowledge
//
//  3. PUSH (Background)
//     DeliveryWorker → fetch pending queue rows per subscription
//     → POST to the subscriber's REST endpoint
//     → On Success: mark delivered
//     → On Failure: record the error, retry on a later pass
//
// # Database Schema
//
// Four tables, created via the embedded migrations:
//
//	pubsub_topic          - Known topics
//	pubsub_subscription   - Durable subscription state
//	pubsub_message        - Topic log of published messages
//	pubsub_queue          - Per-subscriber delivery queue
//
// Supports MySQL, PostgreSQL, and SQLite via Relica adapters.
// Table prefix can be customized (default: "pubsub_").
//
// # Examples
//
// See the examples/ directory for complete working examples.
package pubsub
