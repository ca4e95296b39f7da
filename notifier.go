package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Notification tells the delivery subsystem that a new message is
// waiting in a push subscriber's queue.
type Notification struct {
	TopicName string
	SubKey    string
	PubMsgID  string
}

// PushNotifier delivers notifications to the push delivery subsystem.
// Notify is fire-and-forget: implementations log and retain failures for
// later redelivery instead of surfacing errors into the publish path.
type PushNotifier interface {
	Notify(n Notification)
}

// NoopNotifier discards all notifications. Used when a deployment has no
// push subscribers.
type NoopNotifier struct{}

// Notify implements PushNotifier as a no-op.
func (n *NoopNotifier) Notify(_ Notification) {}

// Metadata keys used to carry Notification fields through the bus.
const (
	notifyMetaTopicName = "topic_name"
	notifyMetaSubKey    = "sub_key"
)

// notifyBusTopic is the in-process bus topic all notifications flow over.
const notifyBusTopic = "pubsub.push.notify"

// WatermillNotifier is the in-process PushNotifier used by the server.
// It bridges publishes onto a watermill GoChannel bus that the delivery
// subsystem subscribes to.
//
// A notification that cannot be placed on the bus is retained and
// redelivered by the background loop started with Run, so a slow
// delivery subsystem delays push hand-off without losing it.
type WatermillNotifier struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger Logger

	mu       sync.Mutex
	retained []Notification
}

// NewWatermillNotifier creates a notifier backed by an in-memory
// GoChannel bus. A nil logger is replaced with NoopLogger.
func NewWatermillNotifier(logger Logger) *WatermillNotifier {
	if logger == nil {
		logger = &NoopLogger{}
	}
	bus := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	return &WatermillNotifier{
		pub:    bus,
		sub:    bus,
		logger: logger,
	}
}

// Notify implements PushNotifier. Failures are retained for the
// redelivery loop, never returned.
func (w *WatermillNotifier) Notify(n Notification) {
	if err := w.publish(n); err != nil {
		w.logger.Warnf("Retaining push notification for %s (msg %s): %v", n.SubKey, n.PubMsgID, err)
		w.mu.Lock()
		w.retained = append(w.retained, n)
		w.mu.Unlock()
	}
}

// RetainedCount returns how many notifications await redelivery.
func (w *WatermillNotifier) RetainedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.retained)
}

// Subscribe hands every notification to handler until ctx is canceled.
// A handler error nacks the bus message; the bus redelivers it.
func (w *WatermillNotifier) Subscribe(ctx context.Context, handler func(Notification) error) error {
	messages, err := w.sub.Subscribe(ctx, notifyBusTopic)
	if err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, "could not subscribe to notification bus", err)
	}

	go func() {
		for msg := range messages {
			n := Notification{
				TopicName: msg.Metadata.Get(notifyMetaTopicName),
				SubKey:    msg.Metadata.Get(notifyMetaSubKey),
				PubMsgID:  string(msg.Payload),
			}
			if err := handler(n); err != nil {
				w.logger.Errorf("Push notification handler failed for %s (msg %s): %v", n.SubKey, n.PubMsgID, err)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// Run starts the redelivery loop for retained notifications. It runs
// until the context is canceled, flushing at the specified interval.
//
// This method blocks and should typically be run in a goroutine.
//
// Example:
//
//	go notifier.Run(ctx, 5*time.Second)
func (w *WatermillNotifier) Run(ctx context.Context, interval time.Duration) {
	w.logger.Infof("Push notifier redelivery loop started (interval: %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Push notifier redelivery loop stopped")
			return
		case <-ticker.C:
			w.flushRetained()
		}
	}
}

// Close shuts the bus down; pending subscriptions end.
func (w *WatermillNotifier) Close() error {
	return w.sub.Close()
}

func (w *WatermillNotifier) publish(n Notification) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(n.PubMsgID))
	msg.Metadata.Set(notifyMetaTopicName, n.TopicName)
	msg.Metadata.Set(notifyMetaSubKey, n.SubKey)
	return w.pub.Publish(notifyBusTopic, msg)
}

func (w *WatermillNotifier) flushRetained() {
	w.mu.Lock()
	pending := w.retained
	w.retained = nil
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	redelivered := 0
	for _, n := range pending {
		if err := w.publish(n); err != nil {
			w.mu.Lock()
			w.retained = append(w.retained, n)
			w.mu.Unlock()
			continue
		}
		redelivered++
	}

	w.logger.Infof("Redelivered %d of %d retained push notifications", redelivered, len(pending))
}
