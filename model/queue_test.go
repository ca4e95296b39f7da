package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnqueuedMessage_TableName(t *testing.T) {
	q := EnqueuedMessage{}
	assert.Equal(t, "pubsub_queue", q.TableName())
}

func TestNewEnqueuedMessage(t *testing.T) {
	msg := NewPubSubMessage(NewTopic("orders.created"), "data")
	sub := NewSubscription("alice", "orders.created")
	msg.SubPatternMatched = map[string]string{sub.SubKey: "pub=orders.*"}

	q := NewEnqueuedMessage(msg, sub)

	assert.Equal(t, msg.PubMsgID, q.PubMsgID)
	assert.Equal(t, sub.SubKey, q.SubKey)
	assert.Equal(t, DeliveryStatusPending, q.DeliveryStatus)
	assert.Equal(t, 0, q.DeliveryCount)
	assert.Equal(t, "pub=orders.*", q.SubPatternMatched)
	assert.False(t, q.LastDeliveryTime.Valid)
	assert.WithinDuration(t, time.Now().UTC(), q.CreationTime, time.Second)
}

func TestNewEnqueuedMessage_NoPatternRecorded(t *testing.T) {
	msg := NewPubSubMessage(NewTopic("orders.created"), "data")
	sub := NewSubscription("alice", "orders.created")

	q := NewEnqueuedMessage(msg, sub)

	assert.Empty(t, q.SubPatternMatched)
}

func TestEnqueuedMessage_MarkDelivered(t *testing.T) {
	msg := NewPubSubMessage(NewTopic("demo.1"), "data")
	sub := NewSubscription("alice", "demo.1")
	q := NewEnqueuedMessage(msg, sub)

	q.MarkDelivered()

	assert.Equal(t, DeliveryStatusDelivered, q.DeliveryStatus)
	assert.Equal(t, 1, q.DeliveryCount)
	assert.True(t, q.LastDeliveryTime.Valid)
	assert.False(t, q.IsPending())
}

func TestEnqueuedMessage_MarkFailed(t *testing.T) {
	msg := NewPubSubMessage(NewTopic("demo.1"), "data")
	sub := NewSubscription("alice", "demo.1")
	q := NewEnqueuedMessage(msg, sub)

	q.MarkFailed(errors.New("connection refused"))

	assert.Equal(t, DeliveryStatusFailed, q.DeliveryStatus)
	assert.Equal(t, 1, q.DeliveryCount)
	assert.True(t, q.LastError.Valid)
	assert.Equal(t, "connection refused", q.LastError.String)
	assert.True(t, q.IsPending())
}

func TestEnqueuedMessage_MarkFailedNilError(t *testing.T) {
	msg := NewPubSubMessage(NewTopic("demo.1"), "data")
	sub := NewSubscription("alice", "demo.1")
	q := NewEnqueuedMessage(msg, sub)

	q.MarkFailed(nil)

	assert.Equal(t, DeliveryStatusFailed, q.DeliveryStatus)
	assert.False(t, q.LastError.Valid)
}
