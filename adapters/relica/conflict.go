package relica

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	pubsub "github.com/coregx/pubsub-broker"
)

// MySQL error numbers signalling contention or duplicates.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrDupEntry        = 1062
)

// isDeadlock reports whether err is retryable contention: a deadlock,
// lock wait timeout or serialization failure, depending on the driver.
func isDeadlock(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40P01 deadlock_detected, 40001 serialization_failure
		return pqErr.Code == "40P01" || pqErr.Code == "40001"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	return false
}

// isDuplicate reports whether err is a uniqueness violation.
func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDupEntry
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505 unique_violation
		return pqErr.Code == "23505"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}

	return false
}

// mapTopicLogError classifies topic-log insert failures. A duplicate
// pub_msg_id means the caller re-published an ID it already used, which
// is fatal, not retryable.
func mapTopicLogError(err error) error {
	if isDuplicate(err) {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeConflict, "duplicate pub_msg_id in topic log", err)
	}
	if isDeadlock(err) {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeTransientStore, "topic log contention", err)
	}
	return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to insert topic messages", err)
}

// mapQueueError classifies fan-out insert failures. On the queue a
// uniqueness violation on (pub_msg_id, sub_key) means another actor
// raced this fan-out, so it is retryable like a deadlock: the pipeline
// re-reads the surviving subscribers and tries again.
func mapQueueError(err error) error {
	if isDeadlock(err) || isDuplicate(err) {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeTransientStore, "fan-out contention", err)
	}
	return pubsub.NewErrorWithCause(pubsub.ErrCodeDatabase, "failed to insert queue messages", err)
}

// rebind rewrites "?" placeholders into the driver's native style.
// Relica does this internally for its own queries; the transactional
// fan-out path runs through database/sql directly and needs the same
// treatment for PostgreSQL.
func rebind(driverName, query string) string {
	if driverName != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
