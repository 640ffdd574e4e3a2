package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/models"
)

// NoteCache fronts wallet_note existence checks with Redis so the online
// detector's hot path does not hit Postgres for every live bet. Misses and
// cache failures fall through to the store; the cache is advisory only.
type NoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

const noteCachePrefix = "wallet_note:"

// NewNoteCache connects to Redis and verifies the connection
func NewNoteCache(cfg *config.RedisConfig) (*NoteCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &NoteCache{client: client, ttl: time.Hour}, nil
}

// NewNoteCacheWithClient wraps an existing client, mainly for tests
func NewNoteCacheWithClient(client *redis.Client) *NoteCache {
	return &NoteCache{client: client, ttl: time.Hour}
}

// Close releases the Redis connection
func (c *NoteCache) Close() error {
	return c.client.Close()
}

// HasNote reports whether a note is cached for the wallet. The second
// return value is false when the cache has no answer and the caller must
// consult the store.
func (c *NoteCache) HasNote(ctx context.Context, wallet string) (hasNote bool, known bool) {
	val, err := c.client.Get(ctx, noteCachePrefix+models.NormalizeWallet(wallet)).Result()
	if err != nil {
		return false, false // miss or cache failure, fall through
	}
	return val == "1", true
}

// SetHasNote records whether the wallet currently has a note
func (c *NoteCache) SetHasNote(ctx context.Context, wallet string, hasNote bool) {
	val := "0"
	if hasNote {
		val = "1"
	}
	// Best effort: a failed set only costs a future store lookup.
	_ = c.client.Set(ctx, noteCachePrefix+models.NormalizeWallet(wallet), val, c.ttl).Err()
}

// Invalidate drops the cached answer for a wallet
func (c *NoteCache) Invalidate(ctx context.Context, wallet string) {
	_ = c.client.Del(ctx, noteCachePrefix+models.NormalizeWallet(wallet)).Err()
}
