package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotConnected is returned by Publish when the broker connection is down.
var ErrNotConnected = errors.New("not connected")

// Conn owns one NATS connection and its JetStream context. A service
// creates a single Conn at startup and hands it to its publishers and
// subscribers; the underlying client is safe for concurrent use.
type Conn struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
	closed chan struct{}
}

// drainTimeout bounds how long Close waits for in-flight traffic.
const drainTimeout = 10 * time.Second

// Connect dials NATS with automatic reconnection and opens a JetStream
// context. Extra nats.Option values are appended to the defaults; passing
// a ClosedHandler replaces the one Close relies on.
func Connect(url string, connectTimeout time.Duration, logger *slog.Logger, opts ...nats.Option) (*Conn, error) {
	closed := make(chan struct{})
	defaults := []nats.Option{
		nats.Timeout(connectTimeout),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(_ *nats.Conn) { close(closed) }),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}
	return &Conn{nc: nc, js: js, logger: logger, closed: closed}, nil
}

// JetStream returns the JetStream context bound to this connection.
func (c *Conn) JetStream() jetstream.JetStream {
	return c.js
}

// IsConnected reports whether the connection is currently usable. A nil
// Conn is never connected.
func (c *Conn) IsConnected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// Close drains pending publishes and acks, then closes the connection.
// It returns once the connection is closed or the drain timeout passes.
func (c *Conn) Close() error {
	if c == nil || c.nc == nil || c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.nc.Close()
		c.logger.Warn("nats drain timed out, connection closed")
	}
	return nil
}

// PublishError reports a failed publish. Err is ErrNotConnected or the
// broker/network error that caused the failure.
type PublishError struct {
	Subject string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing to %s: %v", e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// JetStreamPublisher appends envelopes to JetStream and waits for the
// broker's acknowledgement before returning.
type JetStreamPublisher struct {
	conn    *Conn
	timeout time.Duration
}

// NewJetStreamPublisher returns a publisher that gives up waiting for an
// ack after timeout.
func NewJetStreamPublisher(conn *Conn, timeout time.Duration) *JetStreamPublisher {
	return &JetStreamPublisher{conn: conn, timeout: timeout}
}

// Publish serializes env and appends it to subject. It never retries:
// callers on a request path decide whether a failure matters. The event ID
// is sent as Nats-Msg-Id so the stream drops duplicates of a retried
// envelope within its duplicate window.
func (p *JetStreamPublisher) Publish(ctx context.Context, subject string, env *Envelope) error {
	if !p.conn.IsConnected() {
		return &PublishError{Subject: subject, Err: ErrNotConnected}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return &PublishError{Subject: subject, Err: fmt.Errorf("marshaling envelope: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.conn.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.EventID)); err != nil {
		return &PublishError{Subject: subject, Err: err}
	}
	return nil
}

// Close is a no-op; the Conn is owned and closed by whoever created it.
func (p *JetStreamPublisher) Close() error {
	return nil
}
