package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trackerbridge/internal/logger"
	"trackerbridge/pkg/metrics"
)

// releaseScript deletes the key only when the stored owner token matches, so
// a lock that expired and was re-acquired elsewhere is never released by the
// old owner.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// renewScript extends the TTL only while this acquisition still owns the key.
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// redisClient is the subset of redis.Client commands the manager issues.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type RedisManager struct {
	client    redisClient
	ttl       time.Duration
	keyPrefix string
	logger    logger.Logger
}

type RedisOption func(*RedisManager)

func WithTTL(ttl time.Duration) RedisOption {
	return func(m *RedisManager) { m.ttl = ttl }
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(m *RedisManager) { m.keyPrefix = prefix }
}

// NewRedisManager builds a cluster-wide lock manager on Redis SetNX with an
// owner token per acquisition. The TTL bounds how long a crashed worker can
// hold a subject hostage.
func NewRedisManager(client *redis.Client, log logger.Logger, opts ...RedisOption) *RedisManager {
	m := &RedisManager{
		client:    client,
		ttl:       30 * time.Second,
		keyPrefix: "lock:",
		logger:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RedisManager) Lock(ctx context.Context, key string) error {
	lc, err := FromContext(ctx)
	if err != nil {
		return err
	}
	if lc.Holds(key) {
		return nil
	}

	redisKey := m.keyPrefix + key
	token := uuid.New().String()
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	acquire := func() error {
		ok, err := m.client.SetNX(ctx, redisKey, token, m.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("redis SetNX failed: %w", err))
		}
		if !ok {
			return fmt.Errorf("lock %s held elsewhere", key)
		}
		return nil
	}

	if err := backoff.Retry(acquire, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	metrics.ObserveLockWait(time.Since(start))
	m.logger.DebugwCtx(ctx, "Acquired subject lock",
		"key", key,
		"wait_ms", time.Since(start).Milliseconds(),
	)

	// Keep the claim alive while the transform runs, so a slow script or
	// registry call past the TTL does not silently lose exclusivity.
	renewCtx, stopRenewal := context.WithCancel(context.WithoutCancel(ctx))
	go m.keepAlive(renewCtx, redisKey, key, token)

	lc.register(key, func(releaseCtx context.Context) error {
		stopRenewal()
		if err := m.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	})
	return nil
}

// keepAlive extends the lock on a third of the TTL until release cancels it
// or the key is observed under another owner.
func (m *RedisManager) keepAlive(ctx context.Context, redisKey, key, token string) {
	ticker := time.NewTicker(m.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := m.client.Eval(ctx, renewScript, []string{redisKey}, token, m.ttl.Milliseconds()).Int64()
			if err != nil {
				m.logger.WarnwCtx(ctx, "Failed to renew subject lock",
					"key", key,
					"error", err,
				)
				continue
			}
			if extended == 0 {
				m.logger.WarnwCtx(ctx, "Subject lock expired before renewal",
					"key", key,
				)
				return
			}
		}
	}
}
