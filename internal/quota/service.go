package quota

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/alfredjeanlab/quotabus/internal/config"
	"github.com/alfredjeanlab/quotabus/internal/events"
	"github.com/alfredjeanlab/quotabus/internal/mirror"
)

// Service consumes quota events from JetStream and keeps the Redis quota
// mirror current. It owns its NATS connection and Redis client.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	conn   *events.Conn
	store  mirror.Store
	subs   *events.Subscriber
	syncer *Syncer

	mu       sync.Mutex
	sub      *events.Subscription
	stopOnce sync.Once
}

func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// StreamSpec returns the stream the service consumes from. Quota subjects
// are covered by a quota.> wildcard; any other subject is bound as is.
func StreamSpec(cfg *config.Config) events.StreamSpec {
	subjects := []string{cfg.NATS.Subject}
	if strings.HasPrefix(cfg.NATS.Subject, "quota.") {
		subjects = []string{"quota.>"}
	}
	return events.StreamSpec{
		Name:     cfg.NATS.Stream,
		Subjects: subjects,
		MaxAge:   events.QuotasStream.MaxAge,
	}
}

// Start connects to NATS and Redis, declares the stream and begins
// consuming. Connection failures are returned; a failed stream declaration
// is only logged.
func (s *Service) Start(ctx context.Context) error {
	conn, err := events.Connect(s.cfg.NATS.URL, s.cfg.NATS.ConnectTimeout, s.logger)
	if err != nil {
		return err
	}
	s.conn = conn

	store, err := mirror.NewRedisStore(ctx, mirror.Options{
		Host:      s.cfg.Redis.Host,
		Port:      s.cfg.Redis.Port,
		DB:        s.cfg.Redis.DB,
		Password:  s.cfg.Redis.Password,
		KeyPrefix: s.cfg.Redis.KeyPrefix,
		Timeout:   s.cfg.Redis.Timeout,
	})
	if err != nil {
		s.closeConns()
		return err
	}
	s.store = store
	s.logger.Info("connected to Redis", "host", s.cfg.Redis.Host, "port", s.cfg.Redis.Port)

	events.DeclareStream(ctx, conn.JetStream(), StreamSpec(s.cfg), s.logger)

	s.syncer = NewSyncer(store, s.logger)
	s.subs = events.NewSubscriber(conn, s.logger,
		events.WithBatchSize(s.cfg.NATS.FetchBatch),
		events.WithFetchTimeout(s.cfg.NATS.FetchTimeout),
		events.WithAckWait(s.cfg.NATS.AckWait),
		events.WithMaxDeliver(s.cfg.NATS.MaxDeliver),
		events.WithMalformedPolicy(events.MalformedDrop),
	)
	sub, err := s.subs.Subscribe(ctx, s.cfg.NATS.Stream, s.cfg.NATS.Subject, s.cfg.NATS.Consumer, s.syncer.Handle)
	if err != nil {
		s.closeConns()
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.logger.Info("quota sync started",
		"stream", s.cfg.NATS.Stream,
		"subject", s.cfg.NATS.Subject,
		"consumer", s.cfg.NATS.Consumer)
	return nil
}

// Run starts the service and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Subscription returns the running subscription, or nil before Start.
func (s *Service) Subscription() *events.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// Stop unsubscribes and closes both connections. It is safe to call more
// than once and before Start.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.subs != nil {
			s.subs.UnsubscribeAll()
		}
		s.closeConns()
		s.logger.Info("quota sync stopped")
	})
}

func (s *Service) closeConns() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("closing NATS connection", "err", err)
		}
		s.conn = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing Redis client", "err", err)
		}
		s.store = nil
	}
}
