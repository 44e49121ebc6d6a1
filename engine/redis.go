package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/session"
)

const defaultRedisKeyPrefix = "gatewarden:decision:"

// RedisCachingMiddleware memoizes decisions in Redis so replicas behind a
// load balancer share one cache. Redis failures fall through to the inner
// evaluator on reads and are swallowed on writes: an unavailable cache must
// never decide, or block, a request.
type RedisCachingMiddleware struct {
	next      Evaluator
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCachingMiddleware wraps next with a shared decision cache.
// keyPrefix may be empty to use the default.
func NewRedisCachingMiddleware(next Evaluator, client *redis.Client, ttl time.Duration, keyPrefix string) *RedisCachingMiddleware {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisCachingMiddleware{
		next:      next,
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// Evaluate implements Evaluator.
func (m *RedisCachingMiddleware) Evaluate(ctx context.Context, sess *session.Session, req policy.Requirement) Decision {
	key := m.keyPrefix + cacheKey(sess, req)

	if val, err := m.client.Get(ctx, key).Int(); err == nil {
		if d := Decision(val); d >= Allow && d <= DenyUnauthorized {
			return d
		}
	}

	decision := m.next.Evaluate(ctx, sess, req)

	_ = m.client.Set(ctx, key, int(decision), m.ttl).Err()

	return decision
}

// Invalidate removes every cached decision under the middleware's key
// prefix. Uses SCAN, so it is safe to run against a busy instance.
func (m *RedisCachingMiddleware) Invalidate(ctx context.Context) error {
	iter := m.client.Scan(ctx, 0, m.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
