// Package cache provides an optional read-through result cache for
// inference requests: a local LRU tier backed by an optional Redis tier.
// Only successful results are cached; requests carrying tools are never
// cached since tool call ids are not reusable across invocations.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/types"
)

// ErrCacheMiss indicates the key is in neither tier.
var ErrCacheMiss = errors.New("cache miss")

const redisKeyPrefix = "llmserve:result:"

// Entry is a cached inference result.
type Entry struct {
	Result    types.InferenceResult `json:"result"`
	CreatedAt time.Time             `json:"created_at"`
	HitCount  int                   `json:"hit_count"`
}

// Config configures the result cache.
type Config struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	LocalMaxSize int           `json:"local_max_size" yaml:"local_max_size"`
	LocalTTL     time.Duration `json:"local_ttl" yaml:"local_ttl"`
	RedisAddr    string        `json:"redis_addr" yaml:"redis_addr"`
	RedisTTL     time.Duration `json:"redis_ttl" yaml:"redis_ttl"`
}

// DefaultConfig returns sensible defaults with Redis disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     time.Hour,
	}
}

// ResultCache is the local + Redis result cache.
type ResultCache struct {
	local  *lru
	rdb    *redis.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a result cache. rdb may be nil for local-only operation.
func New(cfg Config, rdb *redis.Client, logger *zap.Logger) *ResultCache {
	if cfg.LocalMaxSize <= 0 {
		cfg.LocalMaxSize = 1000
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 5 * time.Minute
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		local:  newLRU(cfg.LocalMaxSize, cfg.LocalTTL),
		rdb:    rdb,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "result_cache")),
	}
}

// Key derives the cache key from everything that shapes the completion.
// RequestID is deliberately excluded: identical prompts share a key.
func Key(req types.InferenceRequest) string {
	req = req.Normalize()
	data, _ := json.Marshal(struct {
		Messages    []types.ChatMessage `json:"messages"`
		MaxTokens   int                 `json:"max_tokens"`
		Temperature float32             `json:"temperature"`
		Tools       []types.ToolSpec    `json:"tools,omitempty"`
		ToolChoice  string              `json:"tool_choice,omitempty"`
	}{req.Messages, req.MaxTokens, req.Temperature, req.Tools, req.ToolChoice})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// Cacheable reports whether request/result pairs of this shape may be
// cached at all.
func Cacheable(req types.InferenceRequest) bool {
	return len(req.Tools) == 0
}

// Get looks the request up in both tiers. The returned result carries the
// request's own id, not the id of the request that populated the cache.
func (c *ResultCache) Get(ctx context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
	if !Cacheable(req) {
		return types.InferenceResult{}, ErrCacheMiss
	}
	key := Key(req)

	if entry, ok := c.local.get(key); ok {
		return rebind(entry.Result, req.RequestID), nil
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
		if err == nil {
			var entry Entry
			if err := json.Unmarshal(data, &entry); err == nil {
				c.local.set(key, &entry)
				return rebind(entry.Result, req.RequestID), nil
			}
			c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		}
	}

	return types.InferenceResult{}, ErrCacheMiss
}

// Put stores a successful result in both tiers. Failures and non-cacheable
// requests are ignored.
func (c *ResultCache) Put(ctx context.Context, req types.InferenceRequest, res types.InferenceResult) {
	if !res.Success || !Cacheable(req) {
		return
	}
	key := Key(req)
	entry := &Entry{Result: res, CreatedAt: time.Now()}

	c.local.set(key, entry)

	if c.rdb != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		if err := c.rdb.Set(ctx, redisKeyPrefix+key, data, c.cfg.RedisTTL).Err(); err != nil {
			c.logger.Warn("redis cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func rebind(res types.InferenceResult, requestID string) types.InferenceResult {
	res.RequestID = requestID
	return res
}

// --- local LRU tier ---

type lru struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	head     *lruNode
	tail     *lruNode
}

type lruNode struct {
	key       string
	entry     *Entry
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

func newLRU(capacity int, ttl time.Duration) *lru {
	return &lru{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode),
	}
}

func (c *lru) get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(node.expiresAt) {
		c.remove(node)
		delete(c.items, key)
		return nil, false
	}
	c.moveToHead(node)
	node.entry.HitCount++
	return node.entry, true
}

func (c *lru) set(key string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.entry = entry
		node.expiresAt = time.Now().Add(c.ttl)
		c.moveToHead(node)
		return
	}

	node := &lruNode{key: key, entry: entry, expiresAt: time.Now().Add(c.ttl)}
	c.items[key] = node
	c.pushHead(node)

	if len(c.items) > c.capacity {
		evict := c.tail
		c.remove(evict)
		delete(c.items, evict.key)
	}
}

func (c *lru) pushHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *lru) remove(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev, node.next = nil, nil
}

func (c *lru) moveToHead(node *lruNode) {
	if c.head == node {
		return
	}
	c.remove(node)
	c.pushHead(node)
}
