package recommend

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores per-subject scores and whole results. Clear drops
// everything; implementations bound their own size.
type Cache interface {
	GetScore(ctx context.Context, key string) (float64, bool)
	SetScore(ctx context.Context, key string, score float64)
	GetResult(ctx context.Context, key string) (*Result, bool)
	SetResult(ctx context.Context, key string, r *Result)
	Clear(ctx context.Context) error
}

// ── In-memory ──────────────────────────────────────────────

// DefaultMemoryCacheEntries bounds each level of a MemoryCache.
const DefaultMemoryCacheEntries = 10000

// MemoryCache holds at most maxEntries per level. A level that is full is
// reset before the next new key is stored; days_left comes from clients, so
// the key space is not bounded by the number of subjects.
type MemoryCache struct {
	mu         sync.RWMutex
	maxEntries int
	scores     map[string]float64
	results    map[string]Result
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheSize(DefaultMemoryCacheEntries)
}

func NewMemoryCacheSize(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCacheEntries
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		scores:     make(map[string]float64),
		results:    make(map[string]Result),
	}
}

func (c *MemoryCache) GetScore(_ context.Context, key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.scores[key]
	return v, ok
}

func (c *MemoryCache) SetScore(_ context.Context, key string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scores[key]; !ok && len(c.scores) >= c.maxEntries {
		c.scores = make(map[string]float64)
	}
	c.scores[key] = score
}

func (c *MemoryCache) GetResult(_ context.Context, key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[key]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (c *MemoryCache) SetResult(_ context.Context, key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.results[key]; !ok && len(c.results) >= c.maxEntries {
		c.results = make(map[string]Result)
	}
	c.results[key] = *r
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores = make(map[string]float64)
	c.results = make(map[string]Result)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores) + len(c.results)
}

// ── Disabled ───────────────────────────────────────────────

type NopCache struct{}

func (NopCache) GetScore(context.Context, string) (float64, bool)  { return 0, false }
func (NopCache) SetScore(context.Context, string, float64)         {}
func (NopCache) GetResult(context.Context, string) (*Result, bool) { return nil, false }
func (NopCache) SetResult(context.Context, string, *Result)        {}
func (NopCache) Clear(context.Context) error                       { return nil }

// ── Redis ──────────────────────────────────────────────────

const (
	redisPrefix = "studytrack:recommend:"
	redisTTL    = 24 * time.Hour
)

// RedisCache shares cached scores between server replicas. Lookup errors
// are treated as misses; entries expire after redisTTL.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) GetScore(ctx context.Context, key string) (float64, bool) {
	v, err := c.rdb.Get(ctx, redisPrefix+"score:"+key).Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *RedisCache) SetScore(ctx context.Context, key string, score float64) {
	c.rdb.Set(ctx, redisPrefix+"score:"+key, score, redisTTL)
}

func (c *RedisCache) GetResult(ctx context.Context, key string) (*Result, bool) {
	raw, err := c.rdb.Get(ctx, redisPrefix+"result:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (c *RedisCache) SetResult(ctx context.Context, key string, r *Result) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, redisPrefix+"result:"+key, raw, redisTTL)
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
