package broker

import (
	pubsub "github.com/coregx/pubsub-broker"
)

// DialFunc creates a new Connection.
type DialFunc func() (Connection, error)

// Pool is a bounded pool of broker connections.
//
// The pool is pre-populated at construction; individual dial failures
// are logged, not fatal, so the server still starts when the broker is
// briefly unreachable. Acquire never blocks: when the pool is empty a
// new connection is dialed instead, and Release drops the surplus once
// the pool is full again. Dead connections are repaired on the way out
// and discarded on the way in.
type Pool struct {
	conns  chan Connection
	dial   DialFunc
	logger pubsub.Logger
}

// NewPool creates a pool of up to size connections, dialing them all
// upfront. A nil logger is replaced with NoopLogger.
func NewPool(size int, dial DialFunc, logger pubsub.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "pool size must be > 0")
	}
	if dial == nil {
		return nil, pubsub.NewError(pubsub.ErrCodeConfiguration, "dial function is required")
	}
	if logger == nil {
		logger = &pubsub.NoopLogger{}
	}

	p := &Pool{
		conns:  make(chan Connection, size),
		dial:   dial,
		logger: logger,
	}

	for i := 0; i < size; i++ {
		conn, err := dial()
		if err != nil {
			p.logger.Warnf("Could not pre-populate pool connection %d/%d: %v", i+1, size, err)
			continue
		}
		p.conns <- conn
	}
	p.logger.Infof("Broker pool ready with %d/%d connections", len(p.conns), size)

	return p, nil
}

// Acquire returns a live connection, repairing or replacing a dead one.
// When the pool is empty a new connection is dialed rather than
// blocking the caller.
func (p *Pool) Acquire() (Connection, error) {
	var conn Connection
	select {
	case conn = <-p.conns:
	default:
		p.logger.Debugf("Pool empty, dialing extra connection")
		return p.dial()
	}

	if conn.IsAlive() {
		return conn, nil
	}

	p.logger.Warnf("Pooled connection dead, reconnecting")
	if err := conn.Reconnect(); err == nil {
		return conn, nil
	}

	_ = conn.Close()
	return p.dial()
}

// Release returns a connection to the pool. Dead connections are
// closed and dropped; so are healthy ones that no longer fit.
func (p *Pool) Release(conn Connection) {
	if conn == nil {
		return
	}
	if !conn.IsAlive() {
		p.logger.Warnf("Dropping dead connection on release")
		_ = conn.Close()
		return
	}

	select {
	case p.conns <- conn:
	default:
		_ = conn.Close()
	}
}

// Size returns the number of idle connections currently pooled.
func (p *Pool) Size() int {
	return len(p.conns)
}

// Close drains the pool, closing every idle connection.
func (p *Pool) Close() {
	for {
		select {
		case conn := <-p.conns:
			_ = conn.Close()
		default:
			return
		}
	}
}
