package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coregx/pubsub-broker/model"
)

// DeliveryGateway delivers one message to a push subscriber's endpoint.
// Implementations handle the transport (HTTP webhook, internal service
// call) and return an error for any failed delivery so the worker can
// record it and retry on a later pass.
type DeliveryGateway interface {
	// DeliverMessage sends a message to the subscriber's endpoint.
	// Returns an error on network failure, non-2xx response or timeout.
	DeliverMessage(ctx context.Context, endpoint string, msg *model.PubSubMessage) error
}

// HTTPDeliveryGateway delivers messages as JSON POST requests.
type HTTPDeliveryGateway struct {
	client *http.Client
}

// NewHTTPDeliveryGateway creates a gateway with the given client. A nil
// client gets a 30 second default timeout.
func NewHTTPDeliveryGateway(client *http.Client) *HTTPDeliveryGateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDeliveryGateway{client: client}
}

// DeliverMessage implements DeliveryGateway.
func (g *HTTPDeliveryGateway) DeliverMessage(ctx context.Context, endpoint string, msg *model.PubSubMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message %s: %w", msg.PubMsgID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliveryWorker drains the durable delivery queue for push
// subscriptions and hands each pending message to the subscriber's
// endpoint through a DeliveryGateway.
//
// The worker runs in the background, processing batches at regular
// intervals. A failed hand-off is recorded on the queue row and picked
// up again on a later pass; the pull path is untouched, pull
// subscribers drain their own queues through the gateway.
//
// Thread safety: safe for concurrent use. Each batch is processed
// sequentially.
type DeliveryWorker struct {
	store     MessageStore
	registry  *SubscriptionRegistry
	gateway   DeliveryGateway
	logger    Logger
	batchSize int
}

// WorkerOption configures a DeliveryWorker.
type WorkerOption func(*DeliveryWorker) error

// WithWorkerStore sets the required message store.
func WithWorkerStore(store MessageStore) WorkerOption {
	return func(w *DeliveryWorker) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		w.store = store
		return nil
	}
}

// WithWorkerRegistry sets the required subscription registry the worker
// scans for push subscriptions.
func WithWorkerRegistry(registry *SubscriptionRegistry) WorkerOption {
	return func(w *DeliveryWorker) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		w.registry = registry
		return nil
	}
}

// WithWorkerGateway sets the required delivery gateway.
func WithWorkerGateway(gateway DeliveryGateway) WorkerOption {
	return func(w *DeliveryWorker) error {
		if gateway == nil {
			return fmt.Errorf("gateway cannot be nil")
		}
		w.gateway = gateway
		return nil
	}
}

// WithWorkerLogger sets the required logger.
func WithWorkerLogger(logger Logger) WorkerOption {
	return func(w *DeliveryWorker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		w.logger = logger
		return nil
	}
}

// WithWorkerBatchSize sets how many messages one pass may deliver per
// subscription (default 100).
func WithWorkerBatchSize(size int) WorkerOption {
	return func(w *DeliveryWorker) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		w.batchSize = size
		return nil
	}
}

// NewDeliveryWorker creates a delivery worker with the provided options.
//
// Required options:
//   - WithWorkerStore: message store
//   - WithWorkerRegistry: subscription registry
//   - WithWorkerGateway: delivery gateway
//   - WithWorkerLogger: logger instance
//
// Example:
//
//	worker, err := pubsub.NewDeliveryWorker(
//	    pubsub.WithWorkerStore(store),
//	    pubsub.WithWorkerRegistry(registry),
//	    pubsub.WithWorkerGateway(pubsub.NewHTTPDeliveryGateway(nil)),
//	    pubsub.WithWorkerLogger(logger),
//	)
func NewDeliveryWorker(opts ...WorkerOption) (*DeliveryWorker, error) {
	w := &DeliveryWorker{
		batchSize: 100,
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply worker option", err)
		}
	}

	if w.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required (use WithWorkerStore)")
	}
	if w.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRegistry is required (use WithWorkerRegistry)")
	}
	if w.gateway == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryGateway is required (use WithWorkerGateway)")
	}
	if w.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithWorkerLogger)")
	}

	return w, nil
}

// ProcessPending runs one delivery pass over every active push
// subscription. Returns how many messages were delivered and how many
// attempts failed; individual failures are recorded on their queue rows
// and never stop the pass.
func (w *DeliveryWorker) ProcessPending(ctx context.Context) (delivered, failed int) {
	for _, topicName := range w.registry.TopicNames() {
		for _, sub := range w.registry.GetSubscriptionsByTopic(topicName) {
			if !sub.IsPush() || !sub.IsDeliveryActive {
				continue
			}
			// Service invocation has no transport here; those
			// subscriptions stay pending until one is configured.
			if sub.PushType == model.PushTypeService {
				w.logger.Debugf("skipping service push subscription `%s` (service `%s`): no service invoker configured", sub.SubKey, sub.ServiceName)
				continue
			}
			d, f := w.processSubscription(ctx, sub)
			delivered += d
			failed += f
		}
	}
	return delivered, failed
}

func (w *DeliveryWorker) processSubscription(ctx context.Context, sub model.Subscription) (delivered, failed int) {
	msgs, err := w.store.FetchPendingForSubKey(ctx, sub.SubKey, w.batchSize)
	if err != nil {
		w.logger.Errorf("failed to fetch pending messages for `%s`: %v", sub.SubKey, err)
		return 0, 0
	}

	for i := range msgs {
		if ctx.Err() != nil {
			return delivered, failed
		}

		if msgs[i].IsExpired(time.Now().UTC()) {
			// Expired messages are acknowledged without delivery so the
			// queue does not grow indefinitely.
			if err := w.store.MarkDelivered(ctx, sub.SubKey, []string{msgs[i].PubMsgID}); err != nil {
				w.logger.Errorf("failed to discard expired message %s: %v", msgs[i].PubMsgID, err)
			}
			continue
		}

		if err := w.gateway.DeliverMessage(ctx, sub.RestEndpoint, &msgs[i]); err != nil {
			failed++
			w.logger.Warnf("delivery of %s to `%s` failed: %v", msgs[i].PubMsgID, sub.SubKey, err)
			if markErr := w.store.MarkFailed(ctx, sub.SubKey, msgs[i].PubMsgID, err.Error()); markErr != nil {
				w.logger.Errorf("failed to record delivery failure for %s: %v", msgs[i].PubMsgID, markErr)
			}
			continue
		}

		if err := w.store.MarkDelivered(ctx, sub.SubKey, []string{msgs[i].PubMsgID}); err != nil {
			w.logger.Errorf("failed to mark %s delivered: %v", msgs[i].PubMsgID, err)
			continue
		}
		delivered++
	}

	return delivered, failed
}

// Run starts the worker loop. It blocks until ctx is canceled,
// processing one batch per interval, and should typically be run in a
// goroutine:
//
//	go worker.Run(ctx, 30*time.Second)
func (w *DeliveryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("Delivery worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Delivery worker stopped")
			return
		case <-ticker.C:
			delivered, failed := w.ProcessPending(ctx)
			if delivered > 0 || failed > 0 {
				w.logger.Infof("Delivery batch processed: delivered=%d, failed=%d", delivered, failed)
			}
		}
	}
}
