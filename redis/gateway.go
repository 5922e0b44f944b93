package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SavickyAnt/exq-scheduler/backoff"
)

// ErrUnavailable marks a Redis I/O failure that survived retries. Per §7
// this is StorageUnavailable: callers log it and move on, trusting the next
// tick's miss window to absorb the lost firing. It is never fatal.
var ErrUnavailable = errors.New("redis: storage unavailable")

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithTimeout sets the timeout applied to each attempt of every Redis
// operation; every retry gets a fresh timeout of its own. Default 2s.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithBackoff overrides the retry strategy. Default is
// backoff.NewExponentialWithJitter(1s, 1s), matching §5's "exponential
// backoff with capped maximum (default initial 1s, max 1s)".
func WithBackoff(s backoff.Strategy) Option {
	return func(g *Gateway) { g.backoff = s }
}

// WithMaxAttempts caps the number of attempts per call (including the
// first). Default 3.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) { g.maxAttempts = n }
}

// Gateway is a typed thin wrapper around the Redis commands the scheduler
// needs, hiding connection pooling, per-call timeouts, and retry from
// callers. The caller owns the underlying client's lifecycle.
type Gateway struct {
	client      redis.Cmdable
	logger      *slog.Logger
	timeout     time.Duration
	backoff     backoff.Strategy
	maxAttempts int
}

// New wraps client. The client may be a *redis.Client, *redis.ClusterClient,
// or any other redis.Cmdable (including miniredis in tests).
func New(client redis.Cmdable, opts ...Option) *Gateway {
	g := &Gateway{
		client:      client,
		logger:      slog.Default(),
		timeout:     2 * time.Second,
		backoff:     backoff.NewExponentialWithJitter(1*time.Second, 1*time.Second),
		maxAttempts: 3,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// retry runs op, retrying with g.backoff up to g.maxAttempts times. Every
// attempt, including retries, runs under a fresh context.WithTimeout
// derived from ctx. The final error is wrapped in ErrUnavailable.
func (g *Gateway) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
attempts:
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == g.maxAttempts {
			break
		}
		delay := g.backoff.Delay(attempt)
		g.logger.Warn("redis: operation failed, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		}
	}
	return fmt.Errorf("redis: %s: %w: %v", op, ErrUnavailable, lastErr)
}

// HashSet sets field to value in the hash at key.
func (g *Gateway) HashSet(ctx context.Context, key, field, value string) error {
	return g.retry(ctx, "hset", func(ctx context.Context) error {
		return g.client.HSet(ctx, key, field, value).Err()
	})
}

// HashGet returns the value of field in the hash at key. ok is false if the
// field does not exist (this is not an error).
func (g *Gateway) HashGet(ctx context.Context, key, field string) (value string, ok bool, err error) {
	err = g.retry(ctx, "hget", func(ctx context.Context) error {
		v, getErr := g.client.HGet(ctx, key, field).Result()
		if errors.Is(getErr, redis.Nil) {
			ok = false
			return nil
		}
		if getErr != nil {
			return getErr
		}
		value, ok = v, true
		return nil
	})
	return value, ok, err
}

// HashKeys returns every field name in the hash at key.
func (g *Gateway) HashKeys(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := g.retry(ctx, "hkeys", func(ctx context.Context) error {
		v, getErr := g.client.HKeys(ctx, key).Result()
		if getErr != nil {
			return getErr
		}
		out = v
		return nil
	})
	return out, err
}

// ListPush pushes value onto the head of the list at key (LPUSH).
func (g *Gateway) ListPush(ctx context.Context, key, value string) error {
	return g.retry(ctx, "lpush", func(ctx context.Context) error {
		return g.client.LPush(ctx, key, value).Err()
	})
}

// SetAdd adds member to the set at key.
func (g *Gateway) SetAdd(ctx context.Context, key, member string) error {
	return g.retry(ctx, "sadd", func(ctx context.Context) error {
		return g.client.SAdd(ctx, key, member).Err()
	})
}

// CAS implements the guarded-enqueue compare-and-set primitive (§4.4):
//  1. SET lockKey 1 NX, with no expiry.
//  2. If the key was newly set, run fn against a transactional pipeline and
//     execute it.
//  3. Return true iff the lock was newly acquired and the pipeline ran.
//
// A losing CAS (lockKey already existed) is not an error and not retried —
// per §7 it is LockContended, the normal dedup outcome.
func (g *Gateway) CAS(ctx context.Context, lockKey string, fn func(pipe redis.Pipeliner)) (acquired bool, err error) {
	err = g.retry(ctx, "cas", func(ctx context.Context) error {
		ok, setErr := g.client.SetNX(ctx, lockKey, "1", 0).Result()
		if setErr != nil {
			return setErr
		}
		if !ok {
			acquired = false
			return nil
		}

		pipe := g.client.TxPipeline()
		fn(pipe)
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return execErr
		}
		acquired = true
		return nil
	})
	return acquired, err
}
