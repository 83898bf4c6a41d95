package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "documents:pdf:"

// Cache stores rendered PDFs keyed by the markup they were printed from.
// Markup is deterministic, so identical markup always prints the same bytes.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a cache, or nil when caching is disabled.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

// Key derives the cache key for a template and its markup.
func (c *Cache) Key(templateID, html string) string {
	sum := sha256.New()
	sum.Write([]byte(templateID))
	sum.Write([]byte{0})
	sum.Write([]byte(html))
	return cacheKeyPrefix + hex.EncodeToString(sum.Sum(nil))
}

// Get loads a cached document. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set stores a document for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, pdf []byte) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, key, pdf, c.ttl).Err()
}
