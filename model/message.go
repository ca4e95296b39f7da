package model

import "time"

// PubSubMessage represents a published message in the pub/sub broker.
// Messages are immutable once created and contain the actual payload to
// be delivered.
//
// A guaranteed-delivery message is first recorded in the topic log, then
// fanned out as one EnqueuedMessage per matching subscriber.
type PubSubMessage struct {
	PubMsgID        string    `json:"pub_msg_id" db:"pub_msg_id"`           // Unique message ID ("zpsm...")
	CorrelID        string    `json:"correl_id" db:"correl_id"`             // Optional correlation ID
	TopicID         int64     `json:"topic_id" db:"topic_id"`               // Topic this message belongs to
	TopicName       string    `json:"topic_name" db:"topic_name"`           // Denormalized topic name
	Data            string    `json:"data" db:"data"`                       // Message payload
	DataPrefix      string    `json:"data_prefix" db:"data_prefix"`         // First 256 bytes of Data
	DataPrefixShort string    `json:"data_prefix_short" db:"data_prefix_short"` // First 64 bytes of Data
	Size            int       `json:"size" db:"size"`                       // Payload size in bytes
	Priority        int       `json:"priority" db:"priority"`               // 1..9, higher is more urgent
	Expiration      int64     `json:"expiration" db:"expiration"`           // Lifetime in seconds
	ExpirationTime  time.Time `json:"expiration_time" db:"expiration_time"` // PubTime + Expiration
	HasGD           bool      `json:"has_gd" db:"has_gd"`                   // Guaranteed delivery flag
	PubTime         time.Time `json:"pub_time" db:"pub_time"`               // Publication timestamp
	ExtClientID     string    `json:"ext_client_id" db:"ext_client_id"`     // Publisher-assigned client ID
	InReplyTo       string    `json:"in_reply_to" db:"in_reply_to"`         // Message ID this one replies to

	// SubPatternMatched maps a sub key to the subscribe-side pattern that
	// authorized it for this topic. Queue-only: it is carried into each
	// EnqueuedMessage and never stored in the topic log.
	SubPatternMatched map[string]string `json:"-" db:"-"`
}

// TableName returns the database table name for the topic message log.
func (m PubSubMessage) TableName() string {
	return tablePrefix + "message"
}

// NewPubSubMessage creates a message ready for publication to a topic.
// Priority and expiration fall back to their defaults when out of range,
// and the indexed payload previews are derived from data.
func NewPubSubMessage(topic Topic, data string) PubSubMessage {
	now := time.Now().UTC()
	m := PubSubMessage{
		PubMsgID:  NewMsgID(),
		TopicID:   topic.ID,
		TopicName: topic.Name,
		Data:      data,
		Size:      len(data),
		Priority:  DefaultPriority,
		HasGD:     topic.HasGD,
		PubTime:   now,
	}
	m.SetExpiration(DefaultExpiration)
	m.refreshPrefixes()
	return m
}

// SetPriority applies the requested priority, falling back to the default
// when the value is outside the accepted 1..9 range.
func (m *PubSubMessage) SetPriority(priority int) {
	if priority < MinPriority || priority > MaxPriority {
		priority = DefaultPriority
	}
	m.Priority = priority
}

// SetExpiration applies the requested expiration in seconds, falling back
// to the one-year default when the value is not positive, and recomputes
// the absolute expiration time from PubTime.
func (m *PubSubMessage) SetExpiration(seconds int64) {
	if seconds <= 0 {
		seconds = DefaultExpiration
	}
	m.Expiration = seconds
	m.ExpirationTime = m.PubTime.Add(time.Duration(seconds) * time.Second)
}

// IsExpired reports whether the message has passed its expiration time.
func (m *PubSubMessage) IsExpired(now time.Time) bool {
	return now.After(m.ExpirationTime)
}

func (m *PubSubMessage) refreshPrefixes() {
	m.DataPrefix = truncate(m.Data, DataPrefixLen)
	m.DataPrefixShort = truncate(m.Data, DataPrefixShortLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
