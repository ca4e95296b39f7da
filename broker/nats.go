package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	pubsub "github.com/coregx/pubsub-broker"
)

// JetStreamConnection implements Connection over NATS JetStream.
//
// All publishes land on one stream whose subjects are "<stream>.>", so
// the exchange name doubles as the stream name. Fetching uses durable
// pull consumers named after the queue, which survive reconnects and
// process restarts.
type JetStreamConnection struct {
	url    string
	stream string
	logger pubsub.Logger

	nc *nats.Conn
	js nats.JetStreamContext

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewJetStreamConnection dials url and ensures the stream exists.
func NewJetStreamConnection(url, stream string, logger pubsub.Logger) (*JetStreamConnection, error) {
	if logger == nil {
		logger = &pubsub.NoopLogger{}
	}
	c := &JetStreamConnection{
		url:    url,
		stream: stream,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *JetStreamConnection) connect() error {
	nc, err := nats.Connect(c.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeBackend, fmt.Sprintf("could not connect to broker at %s", c.url), err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return pubsub.NewErrorWithCause(pubsub.ErrCodeBackend, "could not initialize JetStream", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     c.stream,
		Subjects: []string{c.stream + ".>"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return pubsub.NewErrorWithCause(pubsub.ErrCodeBackend, fmt.Sprintf("could not ensure stream %s", c.stream), err)
	}

	c.nc = nc
	c.js = js
	return nil
}

// Publish implements Connection.
func (c *JetStreamConnection) Publish(ctx context.Context, exchange, routingKey string, payload []byte, headers map[string]string) error {
	msg := nats.NewMsg(exchange + "." + routingKey)
	msg.Data = payload
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return pubsub.NewErrorWithCause(pubsub.ErrCodeBackend,
			fmt.Sprintf("publish to %s failed", msg.Subject), err)
	}
	return nil
}

// Fetch implements Connection. It binds a durable pull consumer to
// queueName and waits up to wait for messages instead of busy polling.
func (c *JetStreamConnection) Fetch(ctx context.Context, queueName, subject string, maxMessages int, wait time.Duration) ([]RawMessage, error) {
	sub, err := c.pullSubscription(queueName, subject)
	if err != nil {
		return nil, err
	}

	// nats.Context and nats.MaxWait are mutually exclusive fetch
	// options, so the bounded wait is expressed as a context deadline.
	// The caller's ctx still cancels the fetch early.
	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msgs, err := sub.Fetch(maxMessages, nats.Context(fetchCtx))
	if err != nil {
		if isEmptyFetch(err) {
			return nil, nil
		}
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeBackend,
			fmt.Sprintf("fetch from queue %s failed", queueName), err)
	}

	out := make([]RawMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := m
		headers := make(map[string]string, len(msg.Header))
		for k := range msg.Header {
			headers[k] = msg.Header.Get(k)
		}
		out = append(out, RawMessage{
			Subject: msg.Subject,
			Data:    msg.Data,
			Headers: headers,
			ack:     func() error { return msg.Ack() },
		})
	}
	return out, nil
}

// pullSubscription returns the cached durable pull consumer for the
// queue, creating it on first use. Durable names may not contain dots,
// so queue names like "zpsk.pull.abc" are sanitized.
func (c *JetStreamConnection) pullSubscription(queueName, subject string) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[queueName]; ok && sub.IsValid() {
		return sub, nil
	}

	durable := durableName(queueName)
	sub, err := c.js.PullSubscribe(subject, durable, nats.BindStream(c.stream))
	if err != nil {
		return nil, pubsub.NewErrorWithCause(pubsub.ErrCodeBackend,
			fmt.Sprintf("could not create pull consumer %s", durable), err)
	}
	c.subs[queueName] = sub
	return sub, nil
}

// IsAlive implements Connection.
func (c *JetStreamConnection) IsAlive() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Reconnect implements Connection. The durable consumers are rebound
// lazily on the next Fetch.
func (c *JetStreamConnection) Reconnect() error {
	if c.nc != nil {
		c.nc.Close()
	}
	c.mu.Lock()
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	c.logger.Infof("Reconnecting to broker at %s", c.url)
	return c.connect()
}

// Close implements Connection.
func (c *JetStreamConnection) Close() error {
	if c.nc == nil {
		return nil
	}
	c.nc.Close()
	return nil
}

// isEmptyFetch reports whether a fetch error just means the bounded
// wait elapsed with nothing queued, which callers see as an empty
// result rather than a failure.
func isEmptyFetch(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func durableName(queueName string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", "/", "_", " ", "_")
	return replacer.Replace(queueName)
}
