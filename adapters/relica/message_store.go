package relica

import (
	"context"
	"database/sql"
	"strings"
	"time"

	pubsub "github.com/coregx/pubsub-broker"
	"github.com/coregx/pubsub-broker/model"
)

// MessageStore implements pubsub.MessageStore over database/sql.
//
// Both write paths are transactional: the topic log rows of one publish
// call commit together, and the fan-out queue rows commit together or
// not at all. Driver-specific contention errors are translated into the
// broker's taxonomy so the pipeline can decide what to retry.
type MessageStore struct {
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewMessageStore creates a new MessageStore with default table prefix.
func NewMessageStore(sqlDB *sql.DB, driverName string) *MessageStore {
	return &MessageStore{sqlDB: sqlDB, driverName: driverName, tablePrefix: "pubsub_"}
}

// NewMessageStoreWithPrefix creates a new MessageStore with custom table prefix.
func NewMessageStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageStore {
	return &MessageStore{sqlDB: sqlDB, driverName: driverName, tablePrefix: prefix}
}

func (s *MessageStore) messageTable() string {
	return s.tablePrefix + "message"
}

func (s *MessageStore) queueTable() string {
	return s.tablePrefix + "queue"
}

// InsertTopicMessages records msgs in the topic log inside one
// transaction.
func (s *MessageStore) InsertTopicMessages(ctx context.Context, topicID int64, msgs []model.PubSubMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to begin topic log transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := rebind(s.driverName, `INSERT INTO `+s.messageTable()+`
		(pub_msg_id, correl_id, topic_id, topic_name, data, data_prefix, data_prefix_short,
		 size, priority, expiration, expiration_time, has_gd, pub_time, ext_client_id, in_reply_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, m := range msgs {
		_, err := tx.ExecContext(ctx, query,
			m.PubMsgID, m.CorrelID, topicID, m.TopicName, m.Data, m.DataPrefix, m.DataPrefixShort,
			m.Size, m.Priority, m.Expiration, m.ExpirationTime, m.HasGD, m.PubTime, m.ExtClientID, m.InReplyTo)
		if err != nil {
			return mapTopicLogError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapTopicLogError(err)
	}
	return nil
}

// InsertQueueMessages writes all fan-out rows in a single transaction:
// either every (message, sub key) pair is enqueued or none is.
func (s *MessageStore) InsertQueueMessages(ctx context.Context, topicID int64, queue []model.EnqueuedMessage) error {
	if len(queue) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to begin fan-out transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := rebind(s.driverName, `INSERT INTO `+s.queueTable()+`
		(pub_msg_id, sub_key, endpoint_id, delivery_status, delivery_count, sub_pattern_matched, creation_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for _, q := range queue {
		_, err := tx.ExecContext(ctx, query,
			q.PubMsgID, q.SubKey, q.EndpointID, q.DeliveryStatus, q.DeliveryCount, q.SubPatternMatched, q.CreationTime)
		if err != nil {
			return mapQueueError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapQueueError(err)
	}
	return nil
}

// FetchPendingForSubKey retrieves up to limit undelivered queue entries
// for a subscription, oldest first, joined with their message bodies.
func (s *MessageStore) FetchPendingForSubKey(ctx context.Context, subKey string, limit int) ([]model.PubSubMessage, error) {
	query := rebind(s.driverName, `SELECT
		m.pub_msg_id, m.correl_id, m.topic_id, m.topic_name, m.data, m.data_prefix, m.data_prefix_short,
		m.size, m.priority, m.expiration, m.expiration_time, m.has_gd, m.pub_time, m.ext_client_id, m.in_reply_to
		FROM `+s.queueTable()+` q
		JOIN `+s.messageTable()+` m ON m.pub_msg_id = q.pub_msg_id
		WHERE q.sub_key = ? AND q.delivery_status <> ?
		ORDER BY m.priority DESC, q.creation_time ASC
		LIMIT ?`)

	rows, err := s.sqlDB.QueryContext(ctx, query, subKey, model.DeliveryStatusDelivered, limit)
	if err != nil {
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to fetch pending messages", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.PubSubMessage
	for rows.Next() {
		var m model.PubSubMessage
		err := rows.Scan(
			&m.PubMsgID, &m.CorrelID, &m.TopicID, &m.TopicName, &m.Data, &m.DataPrefix, &m.DataPrefixShort,
			&m.Size, &m.Priority, &m.Expiration, &m.ExpirationTime, &m.HasGD, &m.PubTime, &m.ExtClientID, &m.InReplyTo)
		if err != nil {
			return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to scan pending message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to iterate pending messages", err)
	}
	return msgs, nil
}

// MarkDelivered flags queue entries as handed off to the subscriber.
func (s *MessageStore) MarkDelivered(ctx context.Context, subKey string, pubMsgIDs []string) error {
	if len(pubMsgIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(pubMsgIDs)), ", ")
	query := rebind(s.driverName, `UPDATE `+s.queueTable()+`
		SET delivery_status = ?, delivery_count = delivery_count + 1, last_delivery_time = ?
		WHERE sub_key = ? AND pub_msg_id IN (`+placeholders+`)`)

	args := make([]interface{}, 0, len(pubMsgIDs)+3)
	args = append(args, model.DeliveryStatusDelivered, time.Now().UTC(), subKey)
	for _, id := range pubMsgIDs {
		args = append(args, id)
	}

	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to mark messages delivered", err)
	}
	return nil
}

// MarkFailed records one failed delivery attempt for a queue entry. The
// entry stays in a non-delivered state so a later pass retries it.
func (s *MessageStore) MarkFailed(ctx context.Context, subKey, pubMsgID, lastError string) error {
	query := rebind(s.driverName, `UPDATE `+s.queueTable()+`
		SET delivery_status = ?, delivery_count = delivery_count + 1, last_delivery_time = ?, last_error = ?
		WHERE sub_key = ? AND pub_msg_id = ?`)

	_, err := s.sqlDB.ExecContext(ctx, query,
		model.DeliveryStatusFailed, time.Now().UTC(), lastError, subKey, pubMsgID)
	if err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to mark message failed", err)
	}
	return nil
}
