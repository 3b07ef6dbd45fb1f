package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerbridge/internal/logger"
)

// fakeRedis answers the two commands the manager issues, counting renewals
// and releases by script.
type fakeRedis struct {
	mu          sync.Mutex
	renews      int
	releases    int
	renewResult int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{renewResult: 1}
}

func (f *fakeRedis) SetNX(context.Context, string, interface{}, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, _ []string, _ ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch script {
	case renewScript:
		f.renews++
		return redis.NewCmdResult(f.renewResult, nil)
	case releaseScript:
		f.releases++
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) renewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renews
}

func (f *fakeRedis) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

func (f *fakeRedis) loseLock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewResult = 0
}

func testRedisManager(client redisClient, ttl time.Duration) *RedisManager {
	return &RedisManager{
		client:    client,
		ttl:       ttl,
		keyPrefix: "lock:",
		logger:    logger.NopLogger(),
	}
}

func TestRedisManager_RenewsWhileHeld(t *testing.T) {
	fake := newFakeRedis()
	m := testRedisManager(fake, 30*time.Millisecond)

	ctx, lc := NewContext(context.Background())
	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))

	require.Eventually(t, func() bool {
		return fake.renewCount() >= 2
	}, time.Second, 5*time.Millisecond, "lock was not renewed while held")

	require.NoError(t, lc.Close(context.Background()))
	assert.Equal(t, 1, fake.releaseCount())

	// A tick already in flight when release cancels the loop renews at most
	// once more; after the key changes owner any stray renewal bails out.
	fake.loseLock()
	settled := fake.renewCount() + 1
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, fake.renewCount(), settled)
}

func TestRedisManager_RenewalStopsWhenLockLost(t *testing.T) {
	fake := newFakeRedis()
	fake.loseLock()
	m := testRedisManager(fake, 30*time.Millisecond)

	ctx, lc := NewContext(context.Background())
	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))

	require.Eventually(t, func() bool {
		return fake.renewCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The first renewal observed another owner; the loop must give up.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, fake.renewCount())

	require.NoError(t, lc.Close(context.Background()))
}

func TestRedisManager_ReentrantLockDoesNotReacquire(t *testing.T) {
	fake := newFakeRedis()
	m := testRedisManager(fake, time.Minute)

	ctx, lc := NewContext(context.Background())
	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))
	require.NoError(t, m.Lock(ctx, SubjectKey("subject-1")))

	require.NoError(t, lc.Close(context.Background()))
	assert.Equal(t, 1, fake.releaseCount())
}
