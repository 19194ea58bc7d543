package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jadapache/raices-vivas/core"
)

const DefaultCacheTTL = 5 * time.Minute

var _ core.Cache = (*Cache)(nil)

// Cache keeps sessions by token hash. Entries never outlive the session.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewCache(client *redis.Client, cfg core.CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl, now: time.Now}
}

// cachedSession carries the token hash, which core.Session keeps out of JSON.
type cachedSession struct {
	*core.Session
	TokenHash string `json:"tokenHash"`
}

func (c *Cache) Get(ctx context.Context, tokenHash string) (*core.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrCacheNotFound
	}
	if err != nil {
		return nil, err
	}

	entry := cachedSession{Session: &core.Session{}}
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	entry.Session.TokenHash = entry.TokenHash
	if c.now().After(entry.Session.ExpiresAt) {
		_ = c.client.Del(ctx, sessionKey(tokenHash)).Err()
		return nil, core.ErrCacheNotFound
	}
	return entry.Session, nil
}

func (c *Cache) Set(ctx context.Context, tokenHash string, session *core.Session) error {
	ttl := c.entryTTL(session)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(cachedSession{Session: session, TokenHash: session.TokenHash})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(tokenHash), data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, sessionKey(tokenHash)).Err()
}

// Clear removes every cached session, leaving other keys alone.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
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
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) entryTTL(session *core.Session) time.Duration {
	remaining := session.ExpiresAt.Sub(c.now())
	if remaining < c.ttl {
		return remaining
	}
	return c.ttl
}
