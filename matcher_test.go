package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(t *testing.T, clientID string, perms []Permission) *PatternMatcher {
	t.Helper()
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient(clientID, perms))
	return m
}

func TestPatternMatcher_ExactMatch(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.created", Access: AccessPublisher},
	})

	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.OK)
	assert.Equal(t, "orders.created", result.MatchedPattern)

	result = m.Evaluate("alice", "orders.updated", OperationPublish)
	assert.False(t, result.OK)
	assert.Equal(t, "No matching pattern found", result.Reason)
}

func TestPatternMatcher_SingleWildcardStaysWithinSegment(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.*", Access: AccessPublisher},
	})

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).OK)
	assert.True(t, m.Evaluate("alice", "orders.x", OperationPublish).OK)
	assert.False(t, m.Evaluate("alice", "orders.created.warehouse", OperationPublish).OK)
	assert.False(t, m.Evaluate("alice", "invoices.created", OperationPublish).OK)
}

func TestPatternMatcher_DoubleWildcardCrossesSegments(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.**", Access: AccessPublisher},
	})

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).OK)
	assert.True(t, m.Evaluate("alice", "orders.created.warehouse.eu", OperationPublish).OK)
	assert.False(t, m.Evaluate("alice", "invoices.created", OperationPublish).OK)
}

func TestPatternMatcher_CaseInsensitive(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "Orders.Created", Access: AccessPublisher},
		{Pattern: "Invoices.*", Access: AccessPublisher},
	})

	assert.True(t, m.Evaluate("alice", "ORDERS.CREATED", OperationPublish).OK)
	assert.True(t, m.Evaluate("alice", "invoices.PAID", OperationPublish).OK)
}

func TestPatternMatcher_AccessTypesSplitOperations(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.*", Access: AccessPublisher},
		{Pattern: "invoices.*", Access: AccessSubscriber},
		{Pattern: "audit.**", Access: AccessPublisherSubscriber},
	})

	assert.True(t, m.Evaluate("alice", "orders.created", OperationPublish).OK)
	assert.False(t, m.Evaluate("alice", "orders.created", OperationSubscribe).OK)

	assert.False(t, m.Evaluate("alice", "invoices.paid", OperationPublish).OK)
	assert.True(t, m.Evaluate("alice", "invoices.paid", OperationSubscribe).OK)

	assert.True(t, m.Evaluate("alice", "audit.log.entries", OperationPublish).OK)
	assert.True(t, m.Evaluate("alice", "audit.log.entries", OperationSubscribe).OK)
}

func TestPatternMatcher_ExactBeforeWildcard(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.**", Access: AccessPublisher},
		{Pattern: "orders.created", Access: AccessPublisher},
	})

	result := m.Evaluate("alice", "orders.created", OperationPublish)
	assert.True(t, result.OK)
	assert.Equal(t, "orders.created", result.MatchedPattern)
}

func TestPatternMatcher_UnknownClient(t *testing.T) {
	m := NewPatternMatcher()

	result := m.Evaluate("nobody", "orders.created", OperationPublish)
	assert.False(t, result.OK)
	assert.Equal(t, "Client not found", result.Reason)
}

func TestPatternMatcher_InvalidOperation(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.*", Access: AccessPublisher},
	})

	result := m.Evaluate("alice", "orders.created", "purge")
	assert.False(t, result.OK)
	assert.Equal(t, "Invalid operation: purge", result.Reason)
}

func TestPatternMatcher_SetPermissionsReplaces(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.*", Access: AccessPublisher},
	})

	require.NoError(t, m.SetPermissions("alice", []Permission{
		{Pattern: "invoices.*", Access: AccessPublisher},
	}))

	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).OK)
	assert.True(t, m.Evaluate("alice", "invoices.paid", OperationPublish).OK)
}

func TestPatternMatcher_RemoveClient(t *testing.T) {
	m := newTestMatcher(t, "alice", []Permission{
		{Pattern: "orders.*", Access: AccessPublisher},
	})
	assert.Equal(t, 1, m.ClientCount())

	m.RemoveClient("alice")
	assert.Equal(t, 0, m.ClientCount())
	assert.False(t, m.Evaluate("alice", "orders.created", OperationPublish).OK)
}

func TestPatternMatcher_CacheSharedAndClearable(t *testing.T) {
	m := NewPatternMatcher()
	require.NoError(t, m.AddClient("alice", []Permission{{Pattern: "orders.*", Access: AccessPublisher}}))
	require.NoError(t, m.AddClient("bob", []Permission{{Pattern: "orders.*", Access: AccessPublisher}}))

	assert.Equal(t, 1, m.CacheSize())

	require.NoError(t, m.ClearCache())
	assert.Equal(t, 1, m.CacheSize()) // Recompiled for the registered clients.
	assert.True(t, m.Evaluate("bob", "orders.created", OperationPublish).OK)
}
