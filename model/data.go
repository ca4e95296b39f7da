// Package model contains all domain models and data structures for the
// pub/sub broker: topics, subscriptions, published messages and the
// per-subscriber delivery queue entries derived from them.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// tablePrefix is prepended to every table name returned by TableName methods.
const tablePrefix = "pubsub_"

// Prefixes for generated identifiers. These are stable wire-level values
// that external clients may observe and must not change between releases.
const (
	// MsgIDPrefix starts every published message ID.
	MsgIDPrefix = "zpsm"

	// SubKeyPrefix starts every subscription key.
	SubKeyPrefix = "zpsk"
)

// Delivery types for subscriptions.
const (
	// DeliveryTypePull means the subscriber fetches messages itself.
	DeliveryTypePull = "pull"

	// DeliveryTypePush means the broker hands messages to the delivery subsystem.
	DeliveryTypePush = "push"
)

// Push target kinds for push subscriptions.
const (
	PushTypeRest    = "rest"
	PushTypeService = "service"
)

// Defaults and limits applied during publication.
const (
	// DefaultPriority is used when a publish request carries no priority.
	DefaultPriority = 5

	// MinPriority and MaxPriority bound the accepted priority range.
	MinPriority = 1
	MaxPriority = 9

	// DefaultExpiration is one year, in seconds.
	DefaultExpiration = 86400 * 365

	// MaxMessageLen is the largest accepted payload, in bytes.
	MaxMessageLen = 5_000_000

	// MaxMessagesPerFetch caps how many messages one pull request may return.
	MaxMessagesPerFetch = 1000

	// DataPrefixLen and DataPrefixShortLen size the indexed payload previews.
	DataPrefixLen      = 256
	DataPrefixShortLen = 64
)

// NewMsgID returns a new message ID, e.g. "zpsm0a1b2c3d4e5f...".
func NewMsgID() string {
	return MsgIDPrefix + hexSuffix()
}

// NewSubKey returns a new subscription key for the given delivery type,
// e.g. "zpsk.pull.0a1b2c3d4e5f...".
func NewSubKey(deliveryType string) string {
	return SubKeyPrefix + "." + deliveryType + "." + hexSuffix()
}

// NewCID returns a new correlation ID assigned to each inbound request.
func NewCID() string {
	return hexSuffix()
}

func hexSuffix() string {
	u := uuid.New()
	return strings.ReplaceAll(u.String(), "-", "")
}
