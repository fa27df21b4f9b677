package gates

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const wakeChannelPrefix = "dirigent:gate:"

// RedisWaker propagates gate resolution hints between processes over redis
// pub/sub, one channel per gate id. It only shortens the poll wait; the
// persisted gate status stays authoritative, which keeps waiters correct
// when a hint is lost or the subscription dies.
type RedisWaker struct {
	client *redis.Client
}

// NewRedisWaker creates a waker on an existing redis client.
func NewRedisWaker(client *redis.Client) *RedisWaker {
	return &RedisWaker{client: client}
}

// Wait blocks until a hint for gateID arrives or the interval elapses.
func (w *RedisWaker) Wait(ctx context.Context, gateID string, interval time.Duration) error {
	pubsub := w.client.Subscribe(ctx, wakeChannelPrefix+gateID)

	defer func() {
		_ = pubsub.Close()
	}()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-pubsub.Channel():
		return nil
	}
}

// Wake publishes a hint that gateID was resolved.
func (w *RedisWaker) Wake(ctx context.Context, gateID string) error {
	return w.client.Publish(ctx, wakeChannelPrefix+gateID, "resolved").Err()
}
