package model

import (
	"strings"
	"time"
)

// Topic represents a named message channel in the pub/sub broker.
//
// When a message is published to a topic, it is delivered to all active
// subscriptions registered for that topic. Topic names are hierarchical
// using dot notation (e.g. "orders.created", "demo.1") and may be matched
// by publish/subscribe permission patterns.
type Topic struct {
	ID                    int64     `json:"id"`                                                  // Unique topic ID
	Name                  string    `json:"name" db:"name"`                                      // Unique topic name (e.g. "orders.created")
	IsActive              bool      `json:"is_active" db:"is_active"`                            // Only active topics accept new messages
	HasGD                 bool      `json:"has_gd" db:"has_gd"`                                  // Messages are durably recorded before fan-out
	MaxDepthGD            int       `json:"max_depth_gd" db:"max_depth_gd"`                      // Per-subscriber queue depth limit
	RetentionSecs         int64     `json:"retention_secs" db:"retention_secs"`                  // How long delivered messages are retained
	InactivityTimeoutSecs int64     `json:"inactivity_timeout_secs" db:"inactivity_timeout_secs"` // Idle time before the topic is considered dormant
	CreatedAt             time.Time `json:"created_at" db:"created_at"`                          // Topic creation time
}

// TableName returns the database table name for Topic.
func (t Topic) TableName() string {
	return tablePrefix + "topic"
}

// NewTopic creates a new active guaranteed-delivery topic with defaults.
func NewTopic(name string) Topic {
	return Topic{
		ID:                    0,
		Name:                  name,
		IsActive:              true,
		HasGD:                 true,
		MaxDepthGD:            10000,
		RetentionSecs:         86400,
		InactivityTimeoutSecs: 0,
		CreatedAt:             time.Now().UTC(),
	}
}

// IsValidTopicName reports whether name is acceptable as a topic name:
// non-empty after trimming and built only from letters, digits and the
// ". _ - / *" separators.
func IsValidTopicName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-' || r == '/' || r == '*':
		default:
			return false
		}
	}
	return true
}
