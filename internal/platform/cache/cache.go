// Package cache provides an injectable read-through cache with TTL entries,
// de-duplication of concurrent loads and an optional Redis tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL applies when Options.TTL is not positive.
const DefaultTTL = 30 * time.Second

// Observer receives hit and miss notifications per cache name.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
}

// Options configures a Cache.
type Options struct {
	Name     string
	TTL      time.Duration
	Redis    *redis.Client
	Observer Observer
	Logger   *slog.Logger
	Clock    func() time.Time
}

type entry struct {
	payload []byte
	expires time.Time
}

// Cache stores JSON encoded values keyed by string. Instances are
// independent; nothing is shared between them.
type Cache struct {
	name     string
	ttl      time.Duration
	redis    *redis.Client
	observer Observer
	logger   *slog.Logger
	clock    func() time.Time

	mu    sync.RWMutex
	items map[string]entry
	gen   uint64
	group singleflight.Group
}

// New constructs a Cache.
func New(opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.Name
	if name == "" {
		name = "default"
	}
	return &Cache{
		name:     name,
		ttl:      ttl,
		redis:    opts.Redis,
		observer: opts.Observer,
		logger:   logger,
		clock:    clock,
		items:    make(map[string]entry),
	}
}

// Fetch decodes the cached value for key into dest. On a miss the loader
// runs once for all concurrent callers of the same key and its result is
// stored in every tier.
func (c *Cache) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if payload, ok := c.lookup(ctx, key); ok {
		c.hit()
		return json.Unmarshal(payload, dest)
	}
	c.miss()

	resultChan := c.group.DoChan(key, func() (any, error) {
		gen := c.generation()
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache: encode %s: %w", key, err)
		}
		c.store(ctx, key, payload, gen)
		return payload, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Invalidate drops key from every tier. Loads already in flight for the key
// will not repopulate it.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.gen++
	c.mu.Unlock()
	c.group.Forget(key)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			c.group.Forget(key)
		}
	}
	c.gen++
	c.mu.Unlock()
	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, c.redisKey(prefix)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate prefix %s: %w", prefix, err)
	}
	return nil
}

// Len reports the number of live in-memory entries.
func (c *Cache) Len() int {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.items {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	now := c.clock()
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		if now.Before(e.expires) {
			return e.payload, true
		}
		c.mu.Lock()
		if cur, still := c.items[key]; still && !now.Before(cur.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
	}
	if c.redis == nil {
		return nil, false
	}
	payload, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache redis read failed", slog.String("cache", c.name), slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	c.mu.Lock()
	c.items[key] = entry{payload: payload, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return payload, true
}

func (c *Cache) store(ctx context.Context, key string, payload []byte, gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.items[key] = entry{payload: payload, expires: c.clock().Add(c.ttl)}
	c.mu.Unlock()
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.redisKey(key), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache redis write failed", slog.String("cache", c.name), slog.String("key", key), slog.Any("error", err))
	}
}

func (c *Cache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (c *Cache) redisKey(key string) string {
	return "cache:" + c.name + ":" + key
}

func (c *Cache) hit() {
	if c.observer != nil {
		c.observer.CacheHit(c.name)
	}
}

func (c *Cache) miss() {
	if c.observer != nil {
		c.observer.CacheMiss(c.name)
	}
}
