package mirror

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Host      string
	Port      int
	DB        int
	Password  string
	KeyPrefix string
	// Timeout bounds dialing and every individual command.
	Timeout time.Duration
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// RedisStore keeps mirror records as Redis hashes.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	s := &RedisStore{client: client, prefix: opts.KeyPrefix, timeout: opts.Timeout}
	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis at %s: %w", opts.Addr(), err)
	}
	return s, nil
}

// Put writes all record fields and the expiry in one MULTI/EXEC, so a
// reader never sees a record without a TTL.
func (s *RedisStore) Put(ctx context.Context, tenantID string, rec Record, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := Key(s.prefix, tenantID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, rec.Fields())
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Get reads the tenant's record.
func (s *RedisStore) Get(ctx context.Context, tenantID string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := Key(s.prefix, tenantID)
	h, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if len(h) == 0 {
		return nil, ErrNotFound
	}
	rec := recordFromHash(h)
	return &rec, nil
}

// TTL returns the remaining lifetime of the tenant's record.
func (s *RedisStore) TTL(ctx context.Context, tenantID string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := Key(s.prefix, tenantID)
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading TTL of %s: %w", key, err)
	}
	// go-redis reports a missing key as -2ns.
	if ttl == -2 {
		return 0, ErrNotFound
	}
	return ttl, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
