package model

import (
	"database/sql"
	"time"
)

// DeliveryStatus represents the lifecycle state of an enqueued message.
type DeliveryStatus string

const (
	// DeliveryStatusPending indicates the message is awaiting delivery.
	DeliveryStatusPending DeliveryStatus = "pending"

	// DeliveryStatusDelivered indicates the message reached the subscriber.
	DeliveryStatusDelivered DeliveryStatus = "delivered"

	// DeliveryStatusFailed indicates the last delivery attempt failed.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// EnqueuedMessage represents one published message queued for one
// subscriber. Fan-out creates exactly one row per (message, sub key)
// pair; the (pub_msg_id, sub_key) pair is unique in the store.
//
// Lifecycle:
//  1. Created with status pending during fan-out
//  2. Pull subscribers consume it via the gateway, push subscribers
//     receive it from the delivery subsystem
//  3. Retrieval marks it delivered (at-least-once hand-off)
type EnqueuedMessage struct {
	ID                int64          `json:"id"`
	PubMsgID          string         `json:"pub_msg_id" db:"pub_msg_id"`                   // Message being delivered
	SubKey            string         `json:"sub_key" db:"sub_key"`                         // Subscription receiving it
	EndpointID        int64          `json:"endpoint_id" db:"endpoint_id"`                 // Resolved delivery endpoint
	DeliveryStatus    DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	DeliveryCount     int            `json:"delivery_count" db:"delivery_count"`           // Hand-off attempts so far
	LastDeliveryTime  sql.NullTime   `json:"last_delivery_time" db:"last_delivery_time"`
	LastError         sql.NullString `json:"last_error" db:"last_error"`
	SubPatternMatched string         `json:"sub_pattern_matched" db:"sub_pattern_matched"` // Pattern that matched during fan-out
	CreationTime      time.Time      `json:"creation_time" db:"creation_time"`
}

// TableName returns the database table name for EnqueuedMessage.
func (m EnqueuedMessage) TableName() string {
	return tablePrefix + "queue"
}

// NewEnqueuedMessage creates a pending queue entry binding msg to sub.
// The subscribe-side pattern recorded on the message for this sub key,
// if any, is carried onto the queue row.
func NewEnqueuedMessage(msg PubSubMessage, sub Subscription) EnqueuedMessage {
	return EnqueuedMessage{
		ID:                0,
		PubMsgID:          msg.PubMsgID,
		SubKey:            sub.SubKey,
		DeliveryStatus:    DeliveryStatusPending,
		SubPatternMatched: msg.SubPatternMatched[sub.SubKey],
		CreationTime:      time.Now().UTC(),
	}
}

// MarkDelivered records a successful hand-off to the subscriber.
func (m *EnqueuedMessage) MarkDelivered() {
	m.DeliveryStatus = DeliveryStatusDelivered
	m.DeliveryCount++
	m.LastDeliveryTime = sql.NullTime{Time: time.Now().UTC(), Valid: true}
}

// MarkFailed records a failed hand-off together with its error.
func (m *EnqueuedMessage) MarkFailed(err error) {
	m.DeliveryStatus = DeliveryStatusFailed
	m.DeliveryCount++
	m.LastDeliveryTime = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	if err != nil {
		m.LastError = sql.NullString{String: err.Error(), Valid: true}
	}
}

// IsPending reports whether the entry still awaits its first successful
// delivery.
func (m *EnqueuedMessage) IsPending() bool {
	return m.DeliveryStatus != DeliveryStatusDelivered
}
