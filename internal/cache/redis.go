// Package cache stores metadata records in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/audiocut-api/internal/metadata"
)

// KeyPrefix namespaces metadata entries.
const KeyPrefix = "audiocut:metadata:"

// Options holds the Redis connection settings.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// MetadataCache implements metadata.Cache on Redis. Records are stored as
// JSON under a hash of the URL and expire after the TTL.
type MetadataCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ metadata.Cache = (*MetadataCache)(nil)

// NewMetadataCache creates a new MetadataCache. A zero ttl keeps entries
// until evicted.
func NewMetadataCache(client *redis.Client, ttl time.Duration) *MetadataCache {
	return &MetadataCache{client: client, ttl: ttl}
}

// Get implements metadata.Cache.Get.
func (c *MetadataCache) Get(ctx context.Context, url string) (*metadata.Record, bool, error) {
	data, err := c.client.Get(ctx, Key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached metadata: %w", err)
	}

	var rec metadata.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached metadata: %w", err)
	}
	return &rec, true, nil
}

// Set implements metadata.Cache.Set.
func (c *MetadataCache) Set(ctx context.Context, url string, rec *metadata.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := c.client.Set(ctx, Key(url), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached metadata: %w", err)
	}
	return nil
}

// Key returns the Redis key for url.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return KeyPrefix + hex.EncodeToString(sum[:])
}
