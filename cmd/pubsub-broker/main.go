// Package main provides the standalone broker executable: REST gateway,
// publish pipeline, push delivery worker and optional NATS relay.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	pubsub "github.com/coregx/pubsub-broker"
	"github.com/coregx/pubsub-broker/adapters/relica"
	"github.com/coregx/pubsub-broker/broker"
	"github.com/coregx/pubsub-broker/cmd/pubsub-broker/internal/config"
	"github.com/coregx/pubsub-broker/gateway"
	"github.com/coregx/pubsub-broker/migrations"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SimpleLogger implements pubsub.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

func main() {
	log.Println("Starting PubSub Broker...")

	// Local development settings, ignored when the file is absent
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("   Gateway: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	if cfg.Broker.URL != "" {
		log.Printf("   Broker: %s (stream %s, pool %d)", cfg.Broker.URL, cfg.Broker.Stream, cfg.Broker.PoolSize)
	} else {
		log.Printf("   Broker: disabled, pull consumers read the durable queue")
	}
	log.Printf("   Worker batch size: %d", cfg.PubSub.BatchSize)
	log.Printf("   Worker interval: %ds", cfg.PubSub.WorkerInterval)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connection established")

	if cfg.PubSub.AutoMigrate {
		if err := migrations.ApplyAll(db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		log.Println("Migrations applied")
	}

	logger := &SimpleLogger{}

	stores := relica.NewStoresWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	log.Println("Stores initialized (Relica adapters)")

	// Security: user catalog from file, permission patterns per principal
	users, err := config.LoadUsers(cfg.PubSub.UsersFile)
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}

	security := gateway.NewInMemorySecurity()
	matcher := pubsub.NewPatternMatcher()
	for _, u := range users {
		patterns := make([]pubsub.Permission, 0, len(u.Patterns))
		for _, p := range u.Patterns {
			patterns = append(patterns, pubsub.Permission{Pattern: p.Pattern, Access: p.Access})
		}
		security.AddUser(u.Username, u.Password, u.SecName, patterns)
		if err := matcher.AddClient(u.SecName, patterns); err != nil {
			log.Fatalf("Failed to register patterns for %s: %v", u.SecName, err)
		}
	}
	log.Printf("Loaded %d users from %s", len(users), cfg.PubSub.UsersFile)

	registry := pubsub.NewSubscriptionRegistry(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscriptions created before a restart live in the database; load
	// them back so publishes keep fanning out to them.
	loaded, err := registry.Rehydrate(ctx, stores.Topic, stores.Catalog)
	if err != nil {
		log.Fatalf("Failed to rehydrate subscription registry: %v", err)
	}
	log.Printf("Registry rehydrated with %d subscription(s)", loaded)

	notifier := pubsub.NewWatermillNotifier(logger)
	defer func() { _ = notifier.Close() }()
	go notifier.Run(ctx, time.Duration(cfg.PubSub.NotifyInterval)*time.Second)

	pipeline, err := pubsub.NewPipeline(
		pubsub.WithStore(stores.Message),
		pubsub.WithCatalog(stores.Catalog),
		pubsub.WithLogger(logger),
		pubsub.WithNotifier(notifier),
	)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	log.Println("Publish pipeline created")

	// Optional NATS JetStream relay for pull consumers
	var pool *broker.Pool
	if cfg.Broker.URL != "" {
		pool, err = broker.NewPool(cfg.Broker.PoolSize, func() (broker.Connection, error) {
			return broker.NewJetStreamConnection(cfg.Broker.URL, cfg.Broker.Stream, logger)
		}, logger)
		if err != nil {
			log.Fatalf("Failed to create broker pool: %v", err)
		}
		defer pool.Close()
	}

	worker, err := pubsub.NewDeliveryWorker(
		pubsub.WithWorkerStore(stores.Message),
		pubsub.WithWorkerRegistry(registry),
		pubsub.WithWorkerGateway(pubsub.NewHTTPDeliveryGateway(nil)),
		pubsub.WithWorkerLogger(logger),
		pubsub.WithWorkerBatchSize(cfg.PubSub.BatchSize),
	)
	if err != nil {
		log.Fatalf("Failed to create delivery worker: %v", err)
	}

	go worker.Run(ctx, time.Duration(cfg.PubSub.WorkerInterval)*time.Second)

	// Fan-out notifications trigger an immediate delivery pass instead of
	// waiting out the worker interval.
	err = notifier.Subscribe(ctx, func(n pubsub.Notification) error {
		worker.ProcessPending(ctx)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to subscribe to push notifications: %v", err)
	}

	serverOpts := []gateway.Option{
		gateway.WithSecurity(security),
		gateway.WithMatcher(matcher),
		gateway.WithRegistry(registry),
		gateway.WithPipeline(pipeline),
		gateway.WithStore(stores.Message),
		gateway.WithCatalog(stores.Catalog),
		gateway.WithTopics(stores.Topic),
		gateway.WithLogger(logger),
		gateway.WithExchange(cfg.Broker.Exchange),
		gateway.WithFetchWait(time.Duration(cfg.Broker.FetchWaitMs) * time.Millisecond),
	}
	if pool != nil {
		serverOpts = append(serverOpts, gateway.WithPool(pool))
	}

	server, err := gateway.NewServer(serverOpts...)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("REST gateway listening on %s", addr)
		log.Println("API Endpoints:")
		log.Println("   POST   /api/v1/pubsub/publish/:topic")
		log.Println("   GET    /api/v1/pubsub/messages/get")
		log.Println("   POST   /api/v1/pubsub/subscribe/:topic")
		log.Println("   DELETE /api/v1/pubsub/unsubscribe/:topic")
		log.Println("   GET    /api/v1/pubsub/health")

		if err := server.Start(addr); err != nil {
			log.Printf("Gateway stopped: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down broker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Gateway forced to shutdown: %v", err)
	}

	cancel() // Stop worker and notifier loops
	log.Println("Broker stopped gracefully")
}
