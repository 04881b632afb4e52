package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard deduplicates inbound events by external id. Webhook
// deliveries are at-least-once; handlers consult the guard instead of
// counting occurrences.
type IdempotencyGuard interface {
	// FirstSeen returns true exactly once per key within the retention
	// window.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget releases a key that FirstSeen consumed. Handlers call it when
	// processing fails so the provider's redelivery is not dropped.
	Forget(ctx context.Context, key string) error
}

// RedisIdempotencyGuard implements IdempotencyGuard with SET NX.
type RedisIdempotencyGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisIdempotencyGuard builds a guard with the given retention window.
func NewRedisIdempotencyGuard(client *redis.Client, ttl time.Duration) *RedisIdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyGuard{Client: client, TTL: ttl}
}

// FirstSeen implements IdempotencyGuard.
func (g *RedisIdempotencyGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	return g.Client.SetNX(ctx, "idem:"+key, 1, g.TTL).Result()
}

// Forget implements IdempotencyGuard.
func (g *RedisIdempotencyGuard) Forget(ctx context.Context, key string) error {
	return g.Client.Del(ctx, "idem:"+key).Err()
}

// MemoryIdempotencyGuard is the fallback used when Redis is not configured.
// Dedupe state does not survive restarts.
type MemoryIdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryIdempotencyGuard builds an in-process guard.
func NewMemoryIdempotencyGuard() *MemoryIdempotencyGuard {
	return &MemoryIdempotencyGuard{seen: make(map[string]struct{})}
}

// FirstSeen implements IdempotencyGuard.
func (g *MemoryIdempotencyGuard) FirstSeen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}

// Forget implements IdempotencyGuard.
func (g *MemoryIdempotencyGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
