package pubsub

import (
	"fmt"

	"github.com/coregx/pubsub-broker/retry"
)

// Option is a function that configures a Pipeline.
// Used with the Options Pattern for flexible service construction.
//
// Example:
//
//	pipeline, err := pubsub.NewPipeline(
//	    pubsub.WithStore(store),
//	    pubsub.WithCatalog(catalog),
//	    pubsub.WithLogger(logger),
//	    pubsub.WithRetryStrategy(retry.DefaultStrategy()), // optional
//	)
type Option func(*Pipeline) error

// WithStore sets the required message store for the pipeline.
//
// This is a required option for NewPipeline.
func WithStore(store MessageStore) Option {
	return func(p *Pipeline) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		p.store = store
		return nil
	}
}

// WithCatalog sets the required subscription catalog for the pipeline.
// The catalog is consulted after fan-out contention to learn which
// subscribers still exist.
//
// This is a required option for NewPipeline.
func WithCatalog(catalog SubscriptionCatalog) Option {
	return func(p *Pipeline) error {
		if catalog == nil {
			return fmt.Errorf("catalog cannot be nil")
		}
		p.catalog = catalog
		return nil
	}
}

// WithLogger sets the logger instance for the pipeline.
// Logger is required and must not be nil.
//
// Use NoopLogger for silent operation or implement Logger interface
// to integrate with your logging system (zap, logrus, etc.).
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithRetryStrategy sets a custom retry strategy for fan-out attempts
// interrupted by store contention. This is an optional configuration -
// if not provided, retry.DefaultStrategy() will be used.
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(p *Pipeline) error {
		if strategy.MaxAttempts <= 0 {
			return fmt.Errorf("retry strategy must allow at least one attempt, got %d", strategy.MaxAttempts)
		}
		p.retryStrategy = strategy
		return nil
	}
}

// WithNotifier sets an optional push notifier invoked after a successful
// publish so push subscribers learn about new messages without polling.
// If not provided, NoopNotifier is used.
func WithNotifier(notifier PushNotifier) Option {
	return func(p *Pipeline) error {
		if notifier == nil {
			return fmt.Errorf("notifier cannot be nil")
		}
		p.notifier = notifier
		return nil
	}
}
