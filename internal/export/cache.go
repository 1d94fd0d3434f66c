package export

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

// Cache stores rendered artifacts by blueprint content hash.
type Cache interface {
	Get(hash string) (*Artifact, bool)
	Set(hash string, art *Artifact)
}

type memoryCache struct {
	c *cache.Cache
}

// NewMemoryCache keeps artifacts in process for ttl.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{c: cache.New(ttl, 2*ttl)}
}

func (m *memoryCache) Get(hash string) (*Artifact, bool) {
	v, ok := m.c.Get(hash)
	if !ok {
		return nil, false
	}
	return v.(*Artifact), true
}

func (m *memoryCache) Set(hash string, art *Artifact) {
	m.c.SetDefault(hash, art)
}

const (
	redisKeyPrefix = "idleforge:export:"
	redisTimeout   = 500 * time.Millisecond
)

// RedisCache shares artifacts between server instances. Redis failures are
// logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisCache wraps client. A nil logger discards failures.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *log.Logger) *RedisCache {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (rc *RedisCache) Get(hash string) (*Artifact, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := rc.client.Get(ctx, redisKeyPrefix+hash).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		rc.logger.Printf("export_cache_unavailable op=get error=%v", err)
		return nil, false
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		rc.logger.Printf("export_cache_corrupt hash=%s error=%v", shortHash(hash), err)
		return nil, false
	}
	return &art, true
}

func (rc *RedisCache) Set(hash string, art *Artifact) {
	data, err := json.Marshal(art)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := rc.client.Set(ctx, redisKeyPrefix+hash, data, rc.ttl).Err(); err != nil {
		rc.logger.Printf("export_cache_unavailable op=set error=%v", err)
	}
}

// Close releases the Redis connection pool.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
