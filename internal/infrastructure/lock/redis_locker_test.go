package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

func setupTestRedis(t *testing.T, cfg Config) (*miniredis.Miniredis, *RedisLocker) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisLocker(client, cfg, zap.NewNop())
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	mr, locker := setupTestRedis(t, Config{})

	unlock, err := locker.Lock(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("workflow:lock:p1"))

	unlock()
	assert.False(t, mr.Exists("workflow:lock:p1"))
}

func TestRedisLocker_SecondLockWaits(t *testing.T) {
	_, locker := setupTestRedis(t, Config{Wait: time.Second, PollInterval: 5 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), "p1")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		second, err := locker.Lock(context.Background(), "p1")
		if err == nil {
			second()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestRedisLocker_WaitTimeout(t *testing.T) {
	_, locker := setupTestRedis(t, Config{Wait: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), "p1")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), "p1")
	assert.True(t, errors.Is(err, ErrLockTimeout), "got %v", err)
	assert.True(t, errors.Is(err, domainwf.ErrLocked))
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	mr, locker := setupTestRedis(t, Config{TTL: time.Second})

	unlock, err := locker.Lock(context.Background(), "p1")
	require.NoError(t, err)

	// Our lease expires and another process takes the key
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("workflow:lock:p1", "other-process"))

	unlock()
	value, err := mr.Get("workflow:lock:p1")
	require.NoError(t, err)
	assert.Equal(t, "other-process", value)
}

func TestRedisLocker_ConnectionError(t *testing.T) {
	mr, locker := setupTestRedis(t, Config{})
	mr.Close()

	_, err := locker.Lock(context.Background(), "p1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLockTimeout))
}
