package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/pubsub-broker/model"
	"github.com/coregx/pubsub-broker/retry"
)

// Pipeline turns validated publish calls into durable state: it records
// messages in the topic log exactly once, then fans them out as one
// queue row per (message, subscriber) pair.
//
// Fan-out is transactional. When the store reports contention - another
// process deleted a subscriber mid-flight, two publishers raced on the
// same queue - the pipeline re-reads the surviving sub keys from the
// catalog, drops the vanished ones and retries with backoff. The topic
// log is never written twice for one call.
type Pipeline struct {
	store         MessageStore
	catalog       SubscriptionCatalog
	notifier      PushNotifier
	logger        Logger
	retryStrategy retry.Strategy
}

// PublishResult reports the outcome of one pipeline call.
type PublishResult struct {
	Inserted  int      // Messages recorded in the topic log
	FannedOut int      // Queue rows created across all subscribers
	SubKeys   []string // Sub keys that actually received queue rows
}

// publishOpCtx tracks the state of one publish call across fan-out
// retries.
type publishOpCtx struct {
	attempt       int
	topicInserted bool
	subs          []model.Subscription
}

// NewPipeline creates a new Pipeline with the provided options.
//
// Required options:
//   - WithStore: message store
//   - WithCatalog: subscription catalog
//   - WithLogger: logger instance
//
// Example:
//
//	pipeline, err := pubsub.NewPipeline(
//	    pubsub.WithStore(store),
//	    pubsub.WithCatalog(catalog),
//	    pubsub.WithLogger(logger),
//	)
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		retryStrategy: retry.DefaultStrategy(),
		notifier:      &NoopNotifier{},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply pipeline option", err)
		}
	}

	// Validate required dependencies
	if p.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required (use WithStore)")
	}
	if p.catalog == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionCatalog is required (use WithCatalog)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return p, nil
}

// Publish records msgs in the topic log and fans them out to subs.
//
// The process:
//  1. Insert all messages into the topic log, exactly once per call
//  2. Build one queue row per (message, subscriber) pair
//  3. Insert all queue rows in a single transaction
//  4. On store contention, re-read surviving sub keys from the catalog,
//     drop vanished subscribers and retry with backoff
//
// An empty subscriber list is a success with FannedOut == 0. Exhausting
// the retry budget surfaces as an internal error - by then the topic log
// already holds the messages, so the caller must not re-publish.
func (p *Pipeline) Publish(ctx context.Context, topic model.Topic, msgs []model.PubSubMessage, subs []model.Subscription) (*PublishResult, error) {
	if len(msgs) == 0 {
		return nil, NewError(ErrCodeValidation, "no messages to publish")
	}
	if topic.Name == "" {
		return nil, NewError(ErrCodeValidation, "topic name is required")
	}

	op := &publishOpCtx{subs: subs}

	if err := p.insertTopicLog(ctx, topic, msgs, op); err != nil {
		return nil, err
	}

	result := &PublishResult{Inserted: len(msgs)}
	if len(op.subs) == 0 {
		p.logger.Debugf("No subscribers for topic %s, topic log only", topic.Name)
		return result, nil
	}

	for {
		op.attempt++

		queue := buildQueueRows(msgs, op.subs)
		err := p.store.InsertQueueMessages(ctx, topic.ID, queue)
		if err == nil {
			result.FannedOut = len(queue)
			result.SubKeys = subKeysOf(op.subs)
			p.logger.Infof("Fanned out %d messages to %d subscribers on topic %s (attempt %d)",
				len(msgs), len(op.subs), topic.Name, op.attempt)
			p.notifyPush(topic, msgs, op.subs)
			return result, nil
		}

		if !IsTransientStore(err) {
			return nil, NewErrorWithCause(ErrCodeInternal,
				fmt.Sprintf("fan-out failed for topic %s", topic.Name), err)
		}

		if !p.retryStrategy.IsRetryable(op.attempt) {
			return nil, NewErrorWithCause(ErrCodeInternal,
				fmt.Sprintf("fan-out retries exhausted for topic %s after %d attempts", topic.Name, op.attempt), err)
		}

		survivors, rerr := p.refreshSubscribers(ctx, topic.Name, op.subs)
		if rerr != nil {
			return nil, rerr
		}
		op.subs = survivors

		if len(op.subs) == 0 {
			p.logger.Warnf("All subscribers of topic %s vanished during fan-out", topic.Name)
			return result, nil
		}

		delay := p.retryStrategy.CalculateRetryDelay(op.attempt)
		p.logger.Warnf("Fan-out contention on topic %s, retrying %d subscribers in %v (attempt %d)",
			topic.Name, len(op.subs), delay, op.attempt)

		select {
		case <-ctx.Done():
			return nil, NewErrorWithCause(ErrCodeInternal, "publish canceled during fan-out retry", ctx.Err())
		case <-time.After(delay):
		}
	}
}

// insertTopicLog records the messages durably, at most once per call.
func (p *Pipeline) insertTopicLog(ctx context.Context, topic model.Topic, msgs []model.PubSubMessage, op *publishOpCtx) error {
	if op.topicInserted {
		return nil
	}
	if err := p.store.InsertTopicMessages(ctx, topic.ID, msgs); err != nil {
		if IsConflict(err) {
			return NewErrorWithCause(ErrCodeConflict,
				fmt.Sprintf("duplicate message ID on topic %s", topic.Name), err)
		}
		return NewErrorWithCause(ErrCodeInternal,
			fmt.Sprintf("topic log insert failed for topic %s", topic.Name), err)
	}
	op.topicInserted = true
	return nil
}

// refreshSubscribers intersects the in-flight subscriber list with what
// the catalog still knows about, logging everyone who vanished.
func (p *Pipeline) refreshSubscribers(ctx context.Context, topicName string, subs []model.Subscription) ([]model.Subscription, error) {
	existing, err := p.catalog.FetchExistingSubKeys(ctx, topicName, subKeysOf(subs))
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeInternal,
			fmt.Sprintf("could not refresh subscribers for topic %s", topicName), err)
	}

	alive := make(map[string]bool, len(existing))
	for _, subKey := range existing {
		alive[subKey] = true
	}

	survivors := make([]model.Subscription, 0, len(subs))
	for _, sub := range subs {
		if alive[sub.SubKey] {
			survivors = append(survivors, sub)
			continue
		}
		p.logger.Warnf("Dropping vanished subscriber %s (sec_name %s) from fan-out on topic %s",
			sub.SubKey, sub.SecName, topicName)
	}
	return survivors, nil
}

// notifyPush hands new-message notifications to the delivery subsystem
// for push subscribers. Failures are the notifier's to log and redeliver;
// they never fail the publish.
func (p *Pipeline) notifyPush(topic model.Topic, msgs []model.PubSubMessage, subs []model.Subscription) {
	for _, sub := range subs {
		if !sub.IsPush() || !sub.IsDeliveryActive {
			continue
		}
		for _, msg := range msgs {
			p.notifier.Notify(Notification{
				TopicName: topic.Name,
				SubKey:    sub.SubKey,
				PubMsgID:  msg.PubMsgID,
			})
		}
	}
}

func buildQueueRows(msgs []model.PubSubMessage, subs []model.Subscription) []model.EnqueuedMessage {
	queue := make([]model.EnqueuedMessage, 0, len(msgs)*len(subs))
	for _, msg := range msgs {
		for _, sub := range subs {
			queue = append(queue, model.NewEnqueuedMessage(msg, sub))
		}
	}
	return queue
}

func subKeysOf(subs []model.Subscription) []string {
	subKeys := make([]string, len(subs))
	for i, sub := range subs {
		subKeys[i] = sub.SubKey
	}
	return subKeys
}
