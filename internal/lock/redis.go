package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker keeps overlapping ticks of the same periodic job from
// running concurrently. The jobs are idempotent, so a lost or expired
// lock costs wasted work, never correctness.
type Locker interface {
	TryLock(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, job string) error
}

type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(redisAddr string) (*RedisLock, error) {
	const op = "lock.NewRedisLock"

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisLock{client: client}, nil
}

func (r *RedisLock) TryLock(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	const op = "lock.RedisLock.TryLock"

	result, err := r.client.SetNX(ctx, jobKey(job), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (r *RedisLock) Unlock(ctx context.Context, job string) error {
	const op = "lock.RedisLock.Unlock"

	_, err := r.client.Del(ctx, jobKey(job)).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisLock) Close() error {
	return r.client.Close()
}

func jobKey(job string) string {
	return fmt.Sprintf("lock:job:%s", job)
}
