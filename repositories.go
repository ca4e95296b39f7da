package pubsub

import (
	"context"

	"github.com/coregx/pubsub-broker/model"
)

// MessageStore defines the persistence interface for guaranteed-delivery
// messages: the topic log plus the per-subscriber delivery queue derived
// from it during fan-out.
//
// Implementations must be safe for concurrent use. Contention errors
// (deadlocks, lock timeouts, uniqueness races on fan-out) must surface as
// *Error with ErrCodeTransientStore so the pipeline can retry; duplicate
// message IDs in the topic log surface as ErrCodeConflict.
type MessageStore interface {
	// InsertTopicMessages records msgs in the topic log.
	// Each message is recorded at most once per publish call.
	InsertTopicMessages(ctx context.Context, topicID int64, msgs []model.PubSubMessage) error

	// InsertQueueMessages writes all fan-out rows in a single transaction:
	// either every (message, sub key) pair is enqueued or none is.
	InsertQueueMessages(ctx context.Context, topicID int64, queue []model.EnqueuedMessage) error

	// FetchPendingForSubKey retrieves up to limit undelivered queue
	// entries for a subscription, oldest first, joined with their
	// message bodies.
	FetchPendingForSubKey(ctx context.Context, subKey string, limit int) ([]model.PubSubMessage, error)

	// MarkDelivered flags queue entries as handed off to the subscriber.
	MarkDelivered(ctx context.Context, subKey string, pubMsgIDs []string) error

	// MarkFailed records one failed delivery attempt for a queue entry,
	// keeping it pending for a later retry.
	MarkFailed(ctx context.Context, subKey, pubMsgID, lastError string) error
}

// SubscriptionCatalog defines read access to durable subscription state.
// The pipeline consults it after fan-out contention to learn which
// subscribers still exist.
type SubscriptionCatalog interface {
	// FetchSubscriptionsByTopic retrieves all subscriptions for a topic.
	// Returns an empty slice when the topic has none.
	FetchSubscriptionsByTopic(ctx context.Context, topicName string) ([]model.Subscription, error)

	// FetchExistingSubKeys returns the subset of subKeys that still
	// exist for the topic.
	FetchExistingSubKeys(ctx context.Context, topicName string, subKeys []string) ([]string, error)

	// SaveSubscription creates a subscription row (if ID=0) or updates
	// an existing one. Returns the saved row with populated ID.
	SaveSubscription(ctx context.Context, m model.Subscription) (model.Subscription, error)

	// DeleteSubscription removes the (topic, principal) row.
	DeleteSubscription(ctx context.Context, topicName, secName string) error
}

// TopicRepository defines the persistence interface for topic
// configurations.
type TopicRepository interface {
	// Load retrieves a topic by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Topic, error)

	// Save creates a new topic (if ID=0) or updates an existing one.
	// Returns the saved topic with populated ID.
	Save(ctx context.Context, m model.Topic) (model.Topic, error)

	// GetByName retrieves a topic by its unique name.
	// Returns ErrNoData if not found.
	GetByName(ctx context.Context, name string) (model.Topic, error)

	// List retrieves all topics, ordered by name. Returns an empty
	// slice when none exist.
	List(ctx context.Context) ([]model.Topic, error)
}
