package model

import "time"

// Subscription represents one security principal's subscription to one
// topic. The same principal subscribing to several topics yields several
// Subscription values sharing a single sub key.
//
// Each subscription:
//   - Links a principal (SecName) to a topic
//   - Carries the delivery type (pull or push) and push target, if any
//   - Records the subscribe-side pattern that authorized it
//   - Can have delivery toggled off without being removed
type Subscription struct {
	ID                int64     `json:"id"`
	SubKey            string    `json:"sub_key" db:"sub_key"`                         // Subscription key ("zpsk.<type>....")
	SecName           string    `json:"sec_name" db:"sec_name"`                       // Security principal owning the subscription
	TopicName         string    `json:"topic_name" db:"topic_name"`                   // Topic subscribed to
	DeliveryType      string    `json:"delivery_type" db:"delivery_type"`             // "pull" or "push"
	PushType          string    `json:"push_type" db:"push_type"`                     // "rest" or "service" for push delivery
	RestEndpoint      string    `json:"rest_endpoint" db:"rest_endpoint"`             // Outgoing REST target for push/rest
	ServiceName       string    `json:"service_name" db:"service_name"`               // Service target for push/service
	IsDeliveryActive  bool      `json:"is_delivery_active" db:"is_delivery_active"`   // Delivery can be paused per subscription
	SubPatternMatched string    `json:"sub_pattern_matched" db:"sub_pattern_matched"` // Pattern that authorized the subscribe call
	CreationTime      time.Time `json:"creation_time" db:"creation_time"`
}

// TableName returns the database table name for Subscription.
func (m Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// NewSubscription creates an active pull subscription for secName on
// topicName. The caller may switch it to push delivery afterwards.
func NewSubscription(secName, topicName string) Subscription {
	return Subscription{
		ID:               0,
		SubKey:           NewSubKey(DeliveryTypePull),
		SecName:          secName,
		TopicName:        topicName,
		DeliveryType:     DeliveryTypePull,
		IsDeliveryActive: true,
		CreationTime:     time.Now().UTC(),
	}
}

// ForTopic returns a copy of the subscription bound to another topic,
// keeping the same sub key and principal. Used when one subscribe call
// covers several topics.
func (m Subscription) ForTopic(topicName string) Subscription {
	c := m
	c.ID = 0
	c.TopicName = topicName
	return c
}

// IsPush reports whether the subscription uses push delivery.
func (m *Subscription) IsPush() bool {
	return m.DeliveryType == DeliveryTypePush
}

// PauseDelivery stops deliveries without removing the subscription.
func (m *Subscription) PauseDelivery() {
	m.IsDeliveryActive = false
}

// ResumeDelivery re-enables deliveries.
func (m *Subscription) ResumeDelivery() {
	m.IsDeliveryActive = true
}
