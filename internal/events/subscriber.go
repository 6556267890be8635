package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// MalformedPolicy decides what happens to a message whose payload is not a
// valid Envelope.
type MalformedPolicy int

const (
	// MalformedNak negatively acknowledges the message like any other
	// handler failure. MaxDeliver eventually stops the redelivery.
	MalformedNak MalformedPolicy = iota
	// MalformedDrop acknowledges and discards the message with a warning.
	MalformedDrop
)

type subscriberOptions struct {
	batchSize      int
	fetchTimeout   time.Duration
	retryBackoff   time.Duration
	handlerTimeout time.Duration
	ackWait        time.Duration
	maxDeliver     int
	nakDelays      []time.Duration
	malformed      MalformedPolicy
}

func defaultSubscriberOptions() subscriberOptions {
	return subscriberOptions{
		batchSize:      10,
		fetchTimeout:   5 * time.Second,
		retryBackoff:   time.Second,
		handlerTimeout: 10 * time.Second,
		ackWait:        30 * time.Second,
		maxDeliver:     10,
		nakDelays:      []time.Duration{0, time.Second, 5 * time.Second, 15 * time.Second, time.Minute},
		malformed:      MalformedNak,
	}
}

// SubscriberOption tunes a Subscriber.
type SubscriberOption func(*subscriberOptions)

// WithBatchSize sets how many messages one fetch may return.
func WithBatchSize(n int) SubscriberOption {
	return func(o *subscriberOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithFetchTimeout sets how long a fetch waits for messages.
func WithFetchTimeout(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithRetryBackoff sets the pause after a fetch-level error.
func WithRetryBackoff(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		if d > 0 {
			o.retryBackoff = d
		}
	}
}

// WithHandlerTimeout bounds a single handler invocation.
func WithHandlerTimeout(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		if d > 0 {
			o.handlerTimeout = d
		}
	}
}

// WithAckWait sets how long the server waits for an ack before redelivering.
func WithAckWait(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		if d > 0 {
			o.ackWait = d
		}
	}
}

// WithMaxDeliver caps deliveries per message; -1 means unlimited.
func WithMaxDeliver(n int) SubscriberOption {
	return func(o *subscriberOptions) {
		if n != 0 {
			o.maxDeliver = n
		}
	}
}

// WithNakDelays sets the redelivery delay per delivery attempt. The last
// entry applies to every later attempt.
func WithNakDelays(delays ...time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		if len(delays) > 0 {
			o.nakDelays = delays
		}
	}
}

// WithMalformedPolicy sets the handling of undecodable payloads.
func WithMalformedPolicy(p MalformedPolicy) SubscriberOption {
	return func(o *subscriberOptions) {
		o.malformed = p
	}
}

// message is the part of jetstream.Msg the processing loop relies on.
type message interface {
	Data() []byte
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
}

// batch is one fetch result. Messages is closed once the fetch completes;
// Error is valid after that.
type batch interface {
	Messages() <-chan message
	Error() error
}

type fetcher interface {
	fetch(size int, wait time.Duration) (batch, error)
}

// consumerFetcher pulls from a durable JetStream consumer.
type consumerFetcher struct {
	cons jetstream.Consumer
}

func (f consumerFetcher) fetch(size int, wait time.Duration) (batch, error) {
	mb, err := f.cons.Fetch(size, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, err
	}
	// Buffered to the batch size so the copier never blocks once the loop
	// stops reading.
	out := make(chan message, size)
	b := &jsBatch{src: mb, msgs: out}
	go func() {
		defer close(out)
		for m := range mb.Messages() {
			out <- m
		}
	}()
	return b, nil
}

type jsBatch struct {
	src  jetstream.MessageBatch
	msgs chan message
}

func (b *jsBatch) Messages() <-chan message { return b.msgs }
func (b *jsBatch) Error() error             { return b.src.Error() }

// isFetchTimeout reports whether err only means "nothing arrived in time".
func isFetchTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Subscriber runs durable pull consumers, one goroutine per subscription.
type Subscriber struct {
	conn   *Conn
	logger *slog.Logger
	opts   subscriberOptions

	mu   sync.Mutex
	subs []*Subscription
}

// NewSubscriber creates a subscriber on conn.
func NewSubscriber(conn *Conn, logger *slog.Logger, opts ...SubscriberOption) *Subscriber {
	o := defaultSubscriberOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Subscriber{conn: conn, logger: logger, opts: o}
}

// Subscribe creates (or updates) the durable consumer durable on stream,
// filtered to filter, and starts processing its messages with h until
// UnsubscribeAll is called.
func (s *Subscriber) Subscribe(ctx context.Context, stream, filter, durable string, h Handler) (*Subscription, error) {
	if s.conn == nil || !s.conn.IsConnected() {
		return nil, fmt.Errorf("subscribing to %s: %w", filter, ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, declareTimeout)
	defer cancel()
	cons, err := s.conn.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       s.opts.ackWait,
		MaxDeliver:    s.opts.maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer %s on stream %s: %w", durable, stream, err)
	}

	sub := s.start(stream, filter, durable, consumerFetcher{cons: cons}, h)
	s.logger.Info("subscribed", "stream", stream, "subject", filter, "consumer", durable)
	return sub, nil
}

func (s *Subscriber) start(stream, filter, durable string, f fetcher, h Handler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		stream:  stream,
		filter:  filter,
		durable: durable,
		fetcher: f,
		handler: h,
		opts:    s.opts,
		logger:  s.logger.With("stream", stream, "consumer", durable),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		defer close(sub.done)
		sub.run()
	}()
	return sub
}

// UnsubscribeAll stops every processing loop and waits for them to exit.
// A handler that is already running finishes; messages fetched but not yet
// handled are released for redelivery. Durable consumer state stays on the
// server so the next process resumes where this one stopped.
func (s *Subscriber) UnsubscribeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	for _, sub := range subs {
		<-sub.done
		s.logger.Info("unsubscribed", "stream", sub.stream, "consumer", sub.durable)
	}
}

// SubscriptionStats counts message outcomes for one subscription.
type SubscriptionStats struct {
	Acked   uint64
	Naked   uint64
	Dropped uint64
}

// Subscription is one running durable consumer loop.
type Subscription struct {
	stream  string
	filter  string
	durable string
	fetcher fetcher
	handler Handler
	opts    subscriberOptions
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	heartbeats atomic.Uint64
	acked      atomic.Uint64
	naked      atomic.Uint64
	dropped    atomic.Uint64
}

// Heartbeats returns the number of fetch iterations so far. It keeps
// growing while the loop is alive, including across fetch errors.
func (s *Subscription) Heartbeats() uint64 {
	return s.heartbeats.Load()
}

// Stats returns the message outcome counters.
func (s *Subscription) Stats() SubscriptionStats {
	return SubscriptionStats{
		Acked:   s.acked.Load(),
		Naked:   s.naked.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Done is closed when the processing loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run() {
	for s.ctx.Err() == nil {
		s.heartbeats.Add(1)

		b, err := s.fetcher.fetch(s.opts.batchSize, s.opts.fetchTimeout)
		if err != nil {
			if !isFetchTimeout(err) {
				s.logger.Error("fetch failed, retrying", "err", err, "backoff", s.opts.retryBackoff)
				s.pause()
			}
			continue
		}

		for m := range b.Messages() {
			if s.ctx.Err() != nil {
				s.release(m)
				continue
			}
			s.process(m)
		}
		if err := b.Error(); err != nil && !isFetchTimeout(err) {
			s.logger.Error("fetch ended with error, retrying", "err", err, "backoff", s.opts.retryBackoff)
			s.pause()
		}
	}
}

// pause sleeps for the retry backoff unless the subscription is stopped.
func (s *Subscription) pause() {
	t := time.NewTimer(s.opts.retryBackoff)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
	case <-t.C:
	}
}

func (s *Subscription) process(m message) {
	env, err := DecodeEnvelope(m.Data())
	if err != nil {
		if s.opts.malformed == MalformedDrop {
			s.logger.Warn("dropping malformed event", "subject", m.Subject(), "err", err)
			if err := m.Ack(); err != nil {
				s.logger.Error("ack failed", "subject", m.Subject(), "err", err)
			}
			s.dropped.Add(1)
			return
		}
		s.logger.Warn("malformed event, negatively acknowledging", "subject", m.Subject(), "err", err)
		s.nak(m)
		return
	}

	// The handler is not interrupted by UnsubscribeAll; only its own
	// timeout applies.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.opts.handlerTimeout)
	err = s.invoke(ctx, env)
	cancel()
	if err != nil {
		s.logger.Error("event handler failed",
			"subject", m.Subject(), "event_id", env.EventID, "tenant_id", env.Tenant(), "err", err)
		s.nak(m)
		return
	}

	if err := m.Ack(); err != nil {
		// The server redelivers after AckWait; the handler must be idempotent anyway.
		s.logger.Error("ack failed", "subject", m.Subject(), "event_id", env.EventID, "err", err)
		return
	}
	s.acked.Add(1)
}

func (s *Subscription) invoke(ctx context.Context, env *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, env)
}

func (s *Subscription) nak(m message) {
	delay := s.nakDelay(m)
	var err error
	if delay > 0 {
		err = m.NakWithDelay(delay)
	} else {
		err = m.Nak()
	}
	if err != nil {
		s.logger.Error("nak failed", "subject", m.Subject(), "err", err)
		return
	}
	s.naked.Add(1)
}

// release hands a fetched but unprocessed message back for immediate
// redelivery.
func (s *Subscription) release(m message) {
	if err := m.Nak(); err != nil {
		s.logger.Warn("releasing message failed", "subject", m.Subject(), "err", err)
	}
}

// nakDelay picks the redelivery delay for the message's delivery count.
func (s *Subscription) nakDelay(m message) time.Duration {
	delays := s.opts.nakDelays
	if len(delays) == 0 {
		return 0
	}
	attempt := uint64(1)
	if md, err := m.Metadata(); err == nil && md.NumDelivered > 0 {
		attempt = md.NumDelivered
	}
	index := attempt - 1
	if index >= uint64(len(delays)) {
		index = uint64(len(delays) - 1)
	}
	return delays[index]
}
