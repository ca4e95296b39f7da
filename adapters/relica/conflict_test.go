package relica

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	pubsub "github.com/coregx/pubsub-broker"
)

func TestIsDeadlock(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait timeout", &mysql.MySQLError{Number: 1205}, true},
		{"mysql duplicate is not deadlock", &mysql.MySQLError{Number: 1062}, false},
		{"postgres deadlock", &pq.Error{Code: "40P01"}, true},
		{"postgres serialization failure", &pq.Error{Code: "40001"}, true},
		{"postgres unique violation is not deadlock", &pq.Error{Code: "23505"}, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDeadlock(tt.err))
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true},
		{"mysql deadlock is not duplicate", &mysql.MySQLError{Number: 1213}, false},
		{"postgres unique violation", &pq.Error{Code: "23505"}, true},
		{"sqlite unique constraint", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite primary key constraint", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"sqlite other constraint", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicate(tt.err))
		})
	}
}

func TestMapTopicLogError(t *testing.T) {
	var brokerErr *pubsub.Error

	// Duplicate pub_msg_id in the topic log is fatal.
	err := mapTopicLogError(&mysql.MySQLError{Number: 1062})
	assert.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, pubsub.ErrCodeConflict, brokerErr.Code)

	// Deadlocks stay retryable.
	err = mapTopicLogError(&mysql.MySQLError{Number: 1213})
	assert.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, pubsub.ErrCodeTransientStore, brokerErr.Code)

	err = mapTopicLogError(errors.New("disk full"))
	assert.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, pubsub.ErrCodeDatabase, brokerErr.Code)
}

func TestMapQueueError(t *testing.T) {
	var brokerErr *pubsub.Error

	// On the queue, duplicates mean a fan-out race: retryable.
	err := mapQueueError(&pq.Error{Code: "23505"})
	assert.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, pubsub.ErrCodeTransientStore, brokerErr.Code)

	err = mapQueueError(&pq.Error{Code: "40P01"})
	assert.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, pubsub.ErrCodeTransientStore, brokerErr.Code)

	err = mapQueueError(errors.New("disk full"))
	assert.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, pubsub.ErrCodeDatabase, brokerErr.Code)
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"

	assert.Equal(t, query, rebind("mysql", query))
	assert.Equal(t, query, rebind("sqlite3", query))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", rebind("postgres", query))
}
