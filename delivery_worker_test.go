package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/pubsub-broker/model"
)

type workerStore struct {
	mu        sync.Mutex
	pending   map[string][]model.PubSubMessage
	delivered map[string][]string
	failed    map[string][]string
}

func newWorkerStore() *workerStore {
	return &workerStore{
		pending:   make(map[string][]model.PubSubMessage),
		delivered: make(map[string][]string),
		failed:    make(map[string][]string),
	}
}

func (s *workerStore) InsertTopicMessages(_ context.Context, _ int64, _ []model.PubSubMessage) error {
	return nil
}

func (s *workerStore) InsertQueueMessages(_ context.Context, _ int64, _ []model.EnqueuedMessage) error {
	return nil
}

func (s *workerStore) FetchPendingForSubKey(_ context.Context, subKey string, limit int) ([]model.PubSubMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.pending[subKey]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]model.PubSubMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *workerStore) MarkDelivered(_ context.Context, subKey string, pubMsgIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered[subKey] = append(s.delivered[subKey], pubMsgIDs...)

	remaining := s.pending[subKey][:0:0]
	for _, msg := range s.pending[subKey] {
		keep := true
		for _, id := range pubMsgIDs {
			if msg.PubMsgID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, msg)
		}
	}
	s.pending[subKey] = remaining
	return nil
}

func (s *workerStore) MarkFailed(_ context.Context, subKey, pubMsgID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[subKey] = append(s.failed[subKey], pubMsgID)
	return nil
}

type recordingGateway struct {
	mu        sync.Mutex
	delivered []string
	endpoints []string
	failFor   map[string]error
}

func (g *recordingGateway) DeliverMessage(_ context.Context, endpoint string, msg *model.PubSubMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.failFor[msg.PubMsgID]; ok {
		return err
	}
	g.delivered = append(g.delivered, msg.PubMsgID)
	g.endpoints = append(g.endpoints, endpoint)
	return nil
}

func pushSubscription(secName, topicName, endpoint string) model.Subscription {
	sub := model.NewSubscription(secName, topicName)
	sub.DeliveryType = model.DeliveryTypePush
	sub.PushType = model.PushTypeRest
	sub.RestEndpoint = endpoint
	return sub
}

func TestNewDeliveryWorkerValidatesDependencies(t *testing.T) {
	logger := &NoopLogger{}
	store := newWorkerStore()
	registry := NewSubscriptionRegistry(logger)
	gw := &recordingGateway{}

	tests := []struct {
		name string
		opts []WorkerOption
	}{
		{"missing store", []WorkerOption{WithWorkerRegistry(registry), WithWorkerGateway(gw), WithWorkerLogger(logger)}},
		{"missing registry", []WorkerOption{WithWorkerStore(store), WithWorkerGateway(gw), WithWorkerLogger(logger)}},
		{"missing gateway", []WorkerOption{WithWorkerStore(store), WithWorkerRegistry(registry), WithWorkerLogger(logger)}},
		{"missing logger", []WorkerOption{WithWorkerStore(store), WithWorkerRegistry(registry), WithWorkerGateway(gw)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDeliveryWorker(tt.opts...)
			require.Error(t, err)

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ErrCodeConfiguration, perr.Code)
		})
	}
}

func TestDeliveryWorkerDeliversPushMessages(t *testing.T) {
	logger := &NoopLogger{}
	store := newWorkerStore()
	registry := NewSubscriptionRegistry(logger)
	gw := &recordingGateway{}

	sub := pushSubscription("push-sec", "orders.created", "https://example.test/hook")
	registry.Create(sub, []string{"orders.created"})

	topic := registry.EnsureTopic("orders.created")
	msg := model.NewPubSubMessage(topic, "payload")
	store.pending[sub.SubKey] = []model.PubSubMessage{msg}

	worker, err := NewDeliveryWorker(
		WithWorkerStore(store),
		WithWorkerRegistry(registry),
		WithWorkerGateway(gw),
		WithWorkerLogger(logger),
	)
	require.NoError(t, err)

	delivered, failed := worker.ProcessPending(context.Background())

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{msg.PubMsgID}, gw.delivered)
	assert.Equal(t, []string{"https://example.test/hook"}, gw.endpoints)
	assert.Equal(t, []string{msg.PubMsgID}, store.delivered[sub.SubKey])
}

func TestDeliveryWorkerSkipsPullAndPausedSubscriptions(t *testing.T) {
	logger := &NoopLogger{}
	store := newWorkerStore()
	registry := NewSubscriptionRegistry(logger)
	gw := &recordingGateway{}

	pull := model.NewSubscription("pull-sec", "orders.created")
	registry.Create(pull, []string{"orders.created"})

	paused := pushSubscription("paused-sec", "orders.created", "https://example.test/paused")
	paused.PauseDelivery()
	registry.Create(paused, []string{"orders.created"})

	topic := registry.EnsureTopic("orders.created")
	msg := model.NewPubSubMessage(topic, "payload")
	store.pending[pull.SubKey] = []model.PubSubMessage{msg}
	store.pending[paused.SubKey] = []model.PubSubMessage{msg}

	worker, err := NewDeliveryWorker(
		WithWorkerStore(store),
		WithWorkerRegistry(registry),
		WithWorkerGateway(gw),
		WithWorkerLogger(logger),
	)
	require.NoError(t, err)

	delivered, failed := worker.ProcessPending(context.Background())

	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, failed)
	assert.Empty(t, gw.delivered)
}

func TestDeliveryWorkerLeavesServicePushPending(t *testing.T) {
	logger := &NoopLogger{}
	store := newWorkerStore()
	registry := NewSubscriptionRegistry(logger)
	gw := &recordingGateway{}

	svc := model.NewSubscription("svc-sec", "orders.created")
	svc.DeliveryType = model.DeliveryTypePush
	svc.PushType = model.PushTypeService
	svc.ServiceName = "orders.handler"
	registry.Create(svc, []string{"orders.created"})

	topic := registry.EnsureTopic("orders.created")
	msg := model.NewPubSubMessage(topic, "payload")
	store.pending[svc.SubKey] = []model.PubSubMessage{msg}

	worker, err := NewDeliveryWorker(
		WithWorkerStore(store),
		WithWorkerRegistry(registry),
		WithWorkerGateway(gw),
		WithWorkerLogger(logger),
	)
	require.NoError(t, err)

	delivered, failed := worker.ProcessPending(context.Background())

	// Service-invocation subscriptions have no HTTP endpoint; their
	// queue rows stay pending instead of being posted anywhere.
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, failed)
	assert.Empty(t, gw.delivered)
	assert.Len(t, store.pending[svc.SubKey], 1)
}

func TestDeliveryWorkerRecordsFailures(t *testing.T) {
	logger := &NoopLogger{}
	store := newWorkerStore()
	registry := NewSubscriptionRegistry(logger)

	sub := pushSubscription("push-sec", "orders.created", "https://example.test/hook")
	registry.Create(sub, []string{"orders.created"})

	topic := registry.EnsureTopic("orders.created")
	good := model.NewPubSubMessage(topic, "ok")
	bad := model.NewPubSubMessage(topic, "boom")
	store.pending[sub.SubKey] = []model.PubSubMessage{bad, good}

	gw := &recordingGateway{failFor: map[string]error{bad.PubMsgID: errors.New("endpoint down")}}

	worker, err := NewDeliveryWorker(
		WithWorkerStore(store),
		WithWorkerRegistry(registry),
		WithWorkerGateway(gw),
		WithWorkerLogger(logger),
	)
	require.NoError(t, err)

	delivered, failed := worker.ProcessPending(context.Background())

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{bad.PubMsgID}, store.failed[sub.SubKey])
	assert.Equal(t, []string{good.PubMsgID}, store.delivered[sub.SubKey])
}

func TestDeliveryWorkerDiscardsExpiredMessages(t *testing.T) {
	logger := &NoopLogger{}
	store := newWorkerStore()
	registry := NewSubscriptionRegistry(logger)
	gw := &recordingGateway{}

	sub := pushSubscription("push-sec", "orders.created", "https://example.test/hook")
	registry.Create(sub, []string{"orders.created"})

	topic := registry.EnsureTopic("orders.created")
	msg := model.NewPubSubMessage(topic, "stale")
	msg.PubTime = time.Now().UTC().Add(-2 * time.Hour)
	msg.SetExpiration(1)
	store.pending[sub.SubKey] = []model.PubSubMessage{msg}

	worker, err := NewDeliveryWorker(
		WithWorkerStore(store),
		WithWorkerRegistry(registry),
		WithWorkerGateway(gw),
		WithWorkerLogger(logger),
	)
	require.NoError(t, err)

	delivered, failed := worker.ProcessPending(context.Background())

	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, failed)
	assert.Empty(t, gw.delivered)
	assert.Equal(t, []string{msg.PubMsgID}, store.delivered[sub.SubKey])
}
