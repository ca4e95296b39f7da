package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestIsEmptyFetch(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		empty bool
	}{
		{"nats timeout", nats.ErrTimeout, true},
		{"wrapped nats timeout", fmt.Errorf("fetch: %w", nats.ErrTimeout), true},
		{"context deadline", context.DeadlineExceeded, true},
		{"wrapped context deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"context canceled", context.Canceled, false},
		{"other error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, isEmptyFetch(tt.err))
		})
	}
}

func TestDurableName(t *testing.T) {
	tests := []struct {
		queueName string
		want      string
	}{
		{"zpsk.pull.0a1b2c", "zpsk_pull_0a1b2c"},
		{"orders.*", "orders__"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.queueName, func(t *testing.T) {
			assert.Equal(t, tt.want, durableName(tt.queueName))
		})
	}
}
