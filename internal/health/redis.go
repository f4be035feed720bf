package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// statusPinger is satisfied by *redis.Client.
type statusPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker implements health checking for the Redis instance that backs
// the discovery cache, the feed relay and rate limiting.
type RedisChecker struct {
	client statusPinger
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	if client == nil {
		return &RedisChecker{}
	}
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING and expects PONG.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if r.client == nil {
		return ErrNotConfigured
	}
	reply, err := r.client.Ping(ctx).Result()
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", reply)
	}
	return nil
}
