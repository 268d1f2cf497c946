// Package lock serializes approval requests per prison across processes.
// The store already serializes transactions inside one process; the
// distributed lock covers several processes sharing a postgres store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"locationcore/pkg/domain"
)

// DefaultTTL bounds how long a crashed holder can block a prison.
const DefaultTTL = 30 * time.Second

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker obtains per-key leases.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lease, error)
}

// Key names the lock guarding approval requests in one prison.
func Key(prisonID string) string {
	return fmt.Sprintf("locationcore:approval:%s", prisonID)
}

func busy(key string, err error) error {
	return domain.WrapError(err, domain.CodeConflict, domain.ReasonConcurrentModification,
		"another operation holds %s", key)
}

// Local is an in-process Locker, one mutex per key.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

// Obtain waits for the key until ctx is done.
func (l *Local) Obtain(ctx context.Context, key string) (Lease, error) {
	for {
		l.mu.Lock()
		ch, taken := l.held[key]
		if !taken {
			ch = make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			return &localLease{owner: l, key: key, ch: ch}, nil
		}
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, busy(key, ctx.Err())
		}
	}
}

type localLease struct {
	owner *Local
	key   string
	ch    chan struct{}
	once  sync.Once
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
		close(l.ch)
	})
	return nil
}

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	URL     string
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

// Redis obtains leases with redislock.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, cfg RedisConfig) *Redis {
	r := &Redis{client: redislock.New(rdb), ttl: cfg.TTL, retries: cfg.Retries, backoff: cfg.Backoff}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.retries <= 0 {
		r.retries = 20
	}
	if r.backoff <= 0 {
		r.backoff = 100 * time.Millisecond
	}
	return r
}

// DialRedis parses cfg.URL, pings the server and returns the locker with
// its client so the caller can close it.
func DialRedis(ctx context.Context, cfg RedisConfig) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(rdb, cfg), rdb, nil
}

func (r *Redis) Obtain(ctx context.Context, key string) (Lease, error) {
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.backoff), r.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, busy(key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return redisLease{l}, nil
}

type redisLease struct{ lock *redislock.Lock }

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
