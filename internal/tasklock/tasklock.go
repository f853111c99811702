// Package tasklock rejects overlapping runs of the same task kind.
package tasklock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Task kinds.
const (
	KindSync  = "sync"
	KindSend  = "send"
	KindStats = "stats"
)

// Guard is a non-blocking per-kind "already running" flag.
type Guard interface {
	// TryAcquire returns ok=false when kind is already held. release must be
	// called once the task ends.
	TryAcquire(ctx context.Context, kind string) (release func(), ok bool, err error)
}

type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: map[string]bool{}}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, kind string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[kind] {
		return func() {}, false, nil
	}
	g.held[kind] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, kind)
			g.mu.Unlock()
		})
	}, true, nil
}

// RedisGuard holds kinds as redis keys with a TTL so a crashed process does
// not keep a task locked forever.
type RedisGuard struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisGuard(opt *redis.Options, prefix string, ttl time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = "vfzsync:task:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisGuard{Client: redis.NewClient(opt), Prefix: prefix, TTL: ttl}
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *RedisGuard) TryAcquire(ctx context.Context, kind string) (func(), bool, error) {
	key := g.Prefix + kind
	token := uuid.NewString()
	ok, err := g.Client.SetNX(ctx, key, token, g.TTL).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.Client, []string{key}, token).Err()
		})
	}, true, nil
}

func (g *RedisGuard) Close() error {
	if g == nil || g.Client == nil {
		return nil
	}
	return g.Client.Close()
}
