package pubsub

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/coregx/pubsub-broker/model"
)

// SubscriptionRegistry is the in-memory index of who is subscribed to
// what. It keeps one entry per (topic, security principal) pair, so a
// principal subscribing to several topics appears once under each, all
// entries sharing a single sub key.
//
// Topics are created on demand the first time a subscription or message
// references them. All mutations are serialized by one mutex; reads
// return copies so callers never observe later edits.
type SubscriptionRegistry struct {
	mu          sync.RWMutex
	topics      map[string]model.Topic
	subsByTopic map[string]map[string]model.Subscription
	logger      Logger
}

// NewSubscriptionRegistry creates an empty registry. A nil logger is
// replaced with NoopLogger.
func NewSubscriptionRegistry(logger Logger) *SubscriptionRegistry {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &SubscriptionRegistry{
		topics:      make(map[string]model.Topic),
		subsByTopic: make(map[string]map[string]model.Subscription),
		logger:      logger,
	}
}

// EnsureTopic returns the topic with the given name, creating it with
// defaults if it does not exist yet.
func (r *SubscriptionRegistry) EnsureTopic(name string) model.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureTopicLocked(name)
}

// GetTopic returns the named topic, if registered.
func (r *SubscriptionRegistry) GetTopic(name string) (model.Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topic, ok := r.topics[name]
	return topic, ok
}

// AdoptTopic registers a durably stored topic, replacing any on-demand
// entry of the same name so the registry carries the durable ID.
func (r *SubscriptionRegistry) AdoptTopic(topic model.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic.Name] = topic
}

// Rehydrate seeds the registry from durable state: every stored topic
// is adopted and its subscriptions re-registered. Called at startup so
// subscriptions created before a restart keep receiving messages.
// Returns how many subscriptions were loaded.
func (r *SubscriptionRegistry) Rehydrate(ctx context.Context, topics TopicRepository, catalog SubscriptionCatalog) (int, error) {
	stored, err := topics.List(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, topic := range stored {
		r.AdoptTopic(topic)
		subs, err := catalog.FetchSubscriptionsByTopic(ctx, topic.Name)
		if err != nil {
			return loaded, err
		}
		for _, sub := range subs {
			r.Create(sub, []string{sub.TopicName})
			loaded++
		}
	}
	return loaded, nil
}

// TopicNames returns the names of all registered topics, sorted.
func (r *SubscriptionRegistry) TopicNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.topics))
	for name := range r.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create registers sub under every valid name in topicNames, creating
// topics on demand. Invalid topic names are skipped with a log line, not
// an error; an existing entry for the same (topic, principal) pair is
// replaced. Returns the per-topic subscriptions actually registered.
func (r *SubscriptionRegistry) Create(sub model.Subscription, topicNames []string) []model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var created []model.Subscription
	for _, name := range topicNames {
		name = strings.TrimSpace(name)
		if !model.IsValidTopicName(name) {
			r.logger.Warnf("Skipping invalid topic name %q for sec_name %s", name, sub.SecName)
			continue
		}
		_ = r.ensureTopicLocked(name)
		entry := sub.ForTopic(name)
		r.setLocked(name, entry)
		created = append(created, entry)
	}
	return created
}

// Edit moves the subscription identified by subKey to exactly the topics
// in topicNames: entries under topics no longer wanted are removed,
// missing ones are added, and entries of other principals are untouched.
// Invalid topic names are skipped. Emptied topic indexes are pruned.
func (r *SubscriptionRegistry) Edit(subKey string, topicNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Find the current entries carrying this sub key; any of them can
	// serve as the template for newly added topics.
	var template model.Subscription
	var found bool
	current := make(map[string]bool)
	for topicName, bySec := range r.subsByTopic {
		for _, sub := range bySec {
			if sub.SubKey == subKey {
				current[topicName] = true
				template = sub
				found = true
			}
		}
	}
	if !found {
		r.logger.Warnf("Edit ignored, sub_key %s not registered", subKey)
		return
	}

	wanted := make(map[string]bool)
	for _, name := range topicNames {
		name = strings.TrimSpace(name)
		if !model.IsValidTopicName(name) {
			r.logger.Warnf("Skipping invalid topic name %q for sub_key %s", name, subKey)
			continue
		}
		wanted[name] = true
	}

	for topicName := range current {
		if !wanted[topicName] {
			r.removeLocked(topicName, template.SecName)
		}
	}
	for topicName := range wanted {
		if !current[topicName] {
			_ = r.ensureTopicLocked(topicName)
			r.setLocked(topicName, template.ForTopic(topicName))
		}
	}
}

// Delete removes the principal's entries from the given topics, or from
// all topics when topicNames is empty. Returns how many entries were
// removed.
func (r *SubscriptionRegistry) Delete(secName string, topicNames []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(topicNames) == 0 {
		for name := range r.subsByTopic {
			topicNames = append(topicNames, name)
		}
	}

	removed := 0
	for _, name := range topicNames {
		if r.removeLocked(name, secName) {
			removed++
		}
	}
	return removed
}

// Lookup returns all per-topic subscriptions held by the principal.
func (r *SubscriptionRegistry) Lookup(secName string) []model.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []model.Subscription
	for _, bySec := range r.subsByTopic {
		if sub, ok := bySec[secName]; ok {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].TopicName < subs[j].TopicName })
	return subs
}

// FindBySubKey returns one of the entries registered under subKey.
func (r *SubscriptionRegistry) FindBySubKey(subKey string) (model.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, bySec := range r.subsByTopic {
		for _, sub := range bySec {
			if sub.SubKey == subKey {
				return sub, true
			}
		}
	}
	return model.Subscription{}, false
}

// GetSubscriptionsByTopic returns all subscriptions registered for the
// topic, ordered by principal name.
func (r *SubscriptionRegistry) GetSubscriptionsByTopic(topicName string) []model.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bySec, ok := r.subsByTopic[topicName]
	if !ok {
		return nil
	}
	subs := make([]model.Subscription, 0, len(bySec))
	for _, sub := range bySec {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SecName < subs[j].SecName })
	return subs
}

// SubscriptionCount returns the total number of per-topic entries.
func (r *SubscriptionRegistry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, bySec := range r.subsByTopic {
		n += len(bySec)
	}
	return n
}

func (r *SubscriptionRegistry) ensureTopicLocked(name string) model.Topic {
	if topic, ok := r.topics[name]; ok {
		return topic
	}
	topic := model.NewTopic(name)
	topic.ID = int64(len(r.topics) + 1)
	r.topics[name] = topic
	r.logger.Infof("Created topic %s on demand", name)
	return topic
}

func (r *SubscriptionRegistry) setLocked(topicName string, sub model.Subscription) {
	bySec, ok := r.subsByTopic[topicName]
	if !ok {
		bySec = make(map[string]model.Subscription)
		r.subsByTopic[topicName] = bySec
	}
	bySec[sub.SecName] = sub
}

func (r *SubscriptionRegistry) removeLocked(topicName, secName string) bool {
	bySec, ok := r.subsByTopic[topicName]
	if !ok {
		return false
	}
	if _, ok := bySec[secName]; !ok {
		return false
	}
	delete(bySec, secName)
	if len(bySec) == 0 {
		delete(r.subsByTopic, topicName)
	}
	return true
}
