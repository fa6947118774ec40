// Package cache provides a Redis-backed cache-aside store for single book
// lookups. Entries are JSON-encoded under "book:<id>" with a fixed TTL and are
// deleted (not rewritten) whenever the book changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-books-api/internal/domain"
)

const keyPrefix = "book:"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// BookCache stores books in Redis.
type BookCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBookCache wraps an existing client. A ttl <= 0 defaults to five minutes.
func NewBookCache(client *redis.Client, ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BookCache{client: client, ttl: ttl}
}

// Connect builds a client from opts and verifies it with PING.
func Connect(ctx context.Context, opts RedisOptions) (*BookCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewBookCache(client, opts.TTL), nil
}

// Get returns the cached book for id. A miss yields ok=false and a nil error.
func (c *BookCache) Get(ctx context.Context, id uint64) (*domain.Book, bool, error) {
	raw, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var b domain.Book
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false, fmt.Errorf("decode cached book %d: %w", id, err)
	}
	return &b, true, nil
}

// Set stores b under its id with the configured TTL.
func (c *BookCache) Set(ctx context.Context, b *domain.Book) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(b.ID), raw, c.ttl).Err()
}

// Delete drops the entry for id; deleting a missing key is not an error.
func (c *BookCache) Delete(ctx context.Context, id uint64) error {
	return c.client.Del(ctx, Key(id)).Err()
}

// Close releases the underlying client.
func (c *BookCache) Close() error { return c.client.Close() }

// Key returns the Redis key used for a book id.
func Key(id uint64) string { return keyPrefix + strconv.FormatUint(id, 10) }
