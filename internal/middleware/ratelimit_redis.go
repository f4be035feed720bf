package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix namespaces rate limit counters in Redis.
const rateLimitKeyPrefix = "studiocast:ratelimit:"

// counterClient is the subset of the Redis API the fixed window counter needs.
type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisRateLimitStore implements RateLimitStore with a fixed window counter
// shared by every studiod instance. It fails open: when Redis is unreachable
// requests are allowed and the error is counted.
type RedisRateLimitStore struct {
	client  counterClient
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a store backed by client. metrics may be nil.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	return newRedisRateLimitStore(client, metrics, logger)
}

func newRedisRateLimitStore(client counterClient, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{client: client, metrics: metrics, logger: logger}
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := rateLimitKeyPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(err)
		return true, 0
	}

	// The first hit opens the window.
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			s.failOpen(err)
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(err)
		return true, 0
	}
	if ttl < 0 {
		// Counter lost its expiry; restore it so the key cannot block forever.
		_ = s.client.PExpire(ctx, redisKey, config.WindowDuration).Err()
		ttl = config.WindowDuration
	}

	retryAfter := int(ttl.Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

func (s *RedisRateLimitStore) failOpen(err error) {
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
	s.logger.Warn("rate limit store unavailable, allowing request", slog.String("error", err.Error()))
}
