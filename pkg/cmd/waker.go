package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dirigent-dev/dirigent/pkg/gates"
)

// NewGateWaker creates the optional redis-backed gate wake channel. An empty
// URL disables it: gate waits then rely on polling alone.
func NewGateWaker(redisURL string) gates.Waker {
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	return gates.NewRedisWaker(redis.NewClient(opts))
}
