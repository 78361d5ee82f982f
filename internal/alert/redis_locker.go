package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every API and worker instance.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// RedisLockerConfig holds configuration for a RedisLocker.
type RedisLockerConfig struct {
	// Prefix is prepended to every key (default: "alert_lock:").
	Prefix string

	// TTL bounds how long a crashed holder can keep the lock (default: 10 seconds).
	TTL time.Duration

	// MaxWait is how long Lock retries before giving up (default: 5 seconds).
	MaxWait time.Duration
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig) *RedisLocker {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "alert_lock:"
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 10 * time.Second
	}

	wait := cfg.MaxWait
	if wait == 0 {
		wait = 5 * time.Second
	}

	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, wait: wait}
}

// Lock acquires the key with SET NX, retrying with backoff until MaxWait.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = l.wait

	operation := func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire %s: %w", redisKey, err))
		}
		if !ok {
			return ErrLockTimeout
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	release := func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}
	return release, nil
}
