package relica

import (
	"context"
	"database/sql"
	"strings"

	"github.com/coregx/relica"

	pubsub "github.com/coregx/pubsub-broker"
	"github.com/coregx/pubsub-broker/model"
)

// SubscriptionCatalog implements pubsub.SubscriptionCatalog using Relica.
type SubscriptionCatalog struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewSubscriptionCatalog creates a new SubscriptionCatalog with default table prefix.
func NewSubscriptionCatalog(sqlDB *sql.DB, driverName string) *SubscriptionCatalog {
	return &SubscriptionCatalog{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: "pubsub_",
	}
}

// NewSubscriptionCatalogWithPrefix creates a new SubscriptionCatalog with custom table prefix.
func NewSubscriptionCatalogWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionCatalog {
	return &SubscriptionCatalog{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (c *SubscriptionCatalog) tableName() string {
	return c.tablePrefix + "subscription"
}

// FetchSubscriptionsByTopic retrieves all subscriptions for a topic.
func (c *SubscriptionCatalog) FetchSubscriptionsByTopic(ctx context.Context, topicName string) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := c.db.WithContext(ctx).Select("*").
		From(c.tableName()).
		Where("topic_name = ?", topicName).
		OrderBy("sec_name ASC").
		All(&subs)
	if err != nil {
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to fetch subscriptions by topic", err)
	}
	return subs, nil
}

// FetchExistingSubKeys returns the subset of subKeys that still exist
// for the topic. Used by the pipeline after fan-out contention.
func (c *SubscriptionCatalog) FetchExistingSubKeys(ctx context.Context, topicName string, subKeys []string) ([]string, error) {
	if len(subKeys) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(subKeys)), ", ")
	query := rebind(c.driverName, `SELECT sub_key FROM `+c.tableName()+`
		WHERE topic_name = ? AND sub_key IN (`+placeholders+`)`)

	args := make([]interface{}, 0, len(subKeys)+1)
	args = append(args, topicName)
	for _, subKey := range subKeys {
		args = append(args, subKey)
	}

	rows, err := c.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to fetch existing sub keys", err)
	}
	defer func() { _ = rows.Close() }()

	var existing []string
	for rows.Next() {
		var subKey string
		if err := rows.Scan(&subKey); err != nil {
			return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to scan sub key", err)
		}
		existing = append(existing, subKey)
	}
	if err := rows.Err(); err != nil {
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to iterate sub keys", err)
	}
	return existing, nil
}

// SaveSubscription creates or updates a subscription row.
func (c *SubscriptionCatalog) SaveSubscription(ctx context.Context, m model.Subscription) (model.Subscription, error) {
	if m.ID == 0 {
		// Insert using Model() API
		err := c.db.WithContext(ctx).Model(&m).Table(c.tableName()).Insert()
		if err != nil {
			return m, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to insert subscription", err)
		}
		return m, nil
	}

	// Update using Model() API
	err := c.db.WithContext(ctx).Model(&m).Table(c.tableName()).Update()
	if err != nil {
		return m, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to update subscription", err)
	}
	return m, nil
}

// DeleteSubscription removes the (topic, principal) row.
func (c *SubscriptionCatalog) DeleteSubscription(ctx context.Context, topicName, secName string) error {
	query := rebind(c.driverName, `DELETE FROM `+c.tableName()+` WHERE topic_name = ? AND sec_name = ?`)
	if _, err := c.sqlDB.ExecContext(ctx, query, topicName, secName); err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to delete subscription", err)
	}
	return nil
}
