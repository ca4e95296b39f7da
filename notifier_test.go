package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillNotifier_DeliversToSubscriber(t *testing.T) {
	notifier := NewWatermillNotifier(&NoopLogger{})
	defer func() { _ = notifier.Close() }()

	received := make(chan Notification, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, notifier.Subscribe(ctx, func(n Notification) error {
		received <- n
		return nil
	}))

	sent := Notification{
		TopicName: "orders.created",
		SubKey:    "zpsk.push.abc",
		PubMsgID:  "zpsm123",
	}
	notifier.Notify(sent)

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	assert.Equal(t, 0, notifier.RetainedCount())
}

func TestWatermillNotifier_RetainsAfterClose(t *testing.T) {
	notifier := NewWatermillNotifier(&NoopLogger{})
	require.NoError(t, notifier.Close())

	notifier.Notify(Notification{TopicName: "demo.1", SubKey: "zpsk.push.x", PubMsgID: "zpsm1"})

	assert.Equal(t, 1, notifier.RetainedCount())
}

func TestNoopNotifier(t *testing.T) {
	var n NoopNotifier
	n.Notify(Notification{PubMsgID: "zpsm1"}) // must not panic
}
