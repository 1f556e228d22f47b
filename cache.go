package minotaur

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/redis/go-redis/v9"
)

// NoSolution is the cache sentinel recorded when a slice has no
// rewrite.
const NoSolution = "<no-sol>"

// cacheOpTimeout bounds every blocking cache lookup or store.
const cacheOpTimeout = 2 * time.Second

// CacheValue is one cached outcome for a slice.
type CacheValue struct {
	Rewrite    string
	CostAfter  uint
	CostBefore uint
	Origin     string
}

// IsNoSolution reports whether the value records a failed search.
func (v CacheValue) IsNoSolution() bool { return v.Rewrite == NoSolution }

// Cache persists slice → rewrite outcomes in a hash-field key/value
// store. The cache is advisory: transport failures degrade to an
// in-process map and never fail a synthesis run.
type Cache struct {
	cfg    Config
	client *redis.Client

	mu       sync.Mutex
	mem      *immutable.SortedMap[string, CacheValue]
	degraded bool
}

// OpenCache connects to the configured store. Connection failure is
// not an error; the cache starts degraded.
func OpenCache(ctx context.Context, cfg Config) *Cache {
	c := &Cache{
		cfg: cfg,
		mem: immutable.NewSortedMap[string, CacheValue](nil),
	}
	c.client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[cache] unavailable, continuing without: %v", err)
		c.degraded = true
	}
	return c
}

// Close releases the transport connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Cache) degrade(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.degraded {
		log.Printf("[cache] transport failure, degrading: %v", err)
		c.degraded = true
	}
}

func (c *Cache) isDegraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Get returns the cached value for key, if any. Lookups are blocking
// but bounded.
func (c *Cache) Get(ctx context.Context, key string) (CacheValue, bool) {
	if c.isDegraded() {
		c.mu.Lock()
		defer c.mu.Unlock()
		v, ok := c.mem.Get(key)
		return v, ok
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	fields, err := c.client.HGetAll(opCtx, key).Result()
	if err != nil {
		c.degrade(err)
		return CacheValue{}, false
	}
	if len(fields) == 0 {
		return CacheValue{}, false
	}
	after, _ := strconv.ParseUint(fields["cost-after"], 10, 32)
	before, _ := strconv.ParseUint(fields["cost-before"], 10, 32)
	return CacheValue{
		Rewrite:    fields["rewrite"],
		CostAfter:  uint(after),
		CostBefore: uint(before),
		Origin:     fields["origin"],
	}, true
}

func (c *Cache) put(ctx context.Context, key string, v CacheValue) {
	if c.isDegraded() {
		c.mu.Lock()
		c.mem = c.mem.Set(key, v)
		c.mu.Unlock()
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	err := c.client.HSet(opCtx, key,
		"rewrite", v.Rewrite,
		"cost-after", strconv.FormatUint(uint64(v.CostAfter), 10),
		"cost-before", strconv.FormatUint(uint64(v.CostBefore), 10),
		"origin", v.Origin,
	).Err()
	if err != nil {
		c.degrade(err)
		c.mu.Lock()
		c.mem = c.mem.Set(key, v)
		c.mu.Unlock()
	}
}

// PutRewrite records a successful rewrite for key.
func (c *Cache) PutRewrite(ctx context.Context, key string, v CacheValue) {
	c.put(ctx, key, v)
}

// PutNoSolution records that no rewrite exists for key.
func (c *Cache) PutNoSolution(ctx context.Context, key, origin string) {
	c.put(ctx, key, CacheValue{Rewrite: NoSolution, Origin: origin})
}
