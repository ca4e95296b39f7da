package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_TableName(t *testing.T) {
	sub := Subscription{}
	assert.Equal(t, "pubsub_subscription", sub.TableName())
}

func TestNewSubscription(t *testing.T) {
	sub := NewSubscription("alice", "orders.created")

	assert.Equal(t, int64(0), sub.ID)
	assert.Equal(t, "alice", sub.SecName)
	assert.Equal(t, "orders.created", sub.TopicName)
	assert.Equal(t, DeliveryTypePull, sub.DeliveryType)
	assert.True(t, sub.IsDeliveryActive)
	assert.True(t, strings.HasPrefix(sub.SubKey, "zpsk.pull."))
	assert.WithinDuration(t, time.Now().UTC(), sub.CreationTime, time.Second)
}

func TestSubscription_ForTopic(t *testing.T) {
	sub := NewSubscription("alice", "orders.created")
	sub.ID = 42

	other := sub.ForTopic("orders.updated")

	assert.Equal(t, int64(0), other.ID)
	assert.Equal(t, sub.SubKey, other.SubKey)
	assert.Equal(t, sub.SecName, other.SecName)
	assert.Equal(t, "orders.updated", other.TopicName)

	// The original is untouched.
	assert.Equal(t, "orders.created", sub.TopicName)
}

func TestSubscription_PauseResumeDelivery(t *testing.T) {
	sub := NewSubscription("alice", "orders.created")
	assert.True(t, sub.IsDeliveryActive)

	sub.PauseDelivery()
	assert.False(t, sub.IsDeliveryActive)

	sub.ResumeDelivery()
	assert.True(t, sub.IsDeliveryActive)
}

func TestSubscription_IsPush(t *testing.T) {
	sub := NewSubscription("alice", "orders.created")
	assert.False(t, sub.IsPush())

	sub.DeliveryType = DeliveryTypePush
	sub.PushType = PushTypeRest
	sub.RestEndpoint = "https://example.com/hook"
	assert.True(t, sub.IsPush())
}
