package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/alert"
)

func TestRedisLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	locker := alert.NewRedisLocker(client, alert.RedisLockerConfig{MaxWait: 200 * time.Millisecond})

	start := time.Now()
	unlock, err := locker.Lock(context.Background(), "SO2")

	require.Error(t, err)
	assert.Nil(t, unlock)
	assert.Contains(t, err.Error(), "alert_lock:SO2")
	// Connection errors are not retried until MaxWait.
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedisLocker_ImplementsLocker(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	var locker alert.Locker = alert.NewRedisLocker(client, alert.RedisLockerConfig{})
	assert.NotNil(t, locker)
}
