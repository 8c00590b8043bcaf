package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/dappkit/internal/session"

	redis "github.com/redis/go-redis/v9"
)

// sessionStoragePrefix defines the base key prefix of session hashes.
const sessionStoragePrefix = "dappkit"

// sessionStorageKey returns the hash holding every session key of a profile.
//
// Format: "dappkit:session:{profile}"
func sessionStorageKey(profile string) string {
	return fmt.Sprintf("%s:session:%s", sessionStoragePrefix, profile)
}

// Get implements session.Store with HGET.
func (c *client) Get(ctx context.Context, key string) (string, error) {
	value, err := c.conn.HGet(ctx, sessionStorageKey(c.profile), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", session.ErrNotFound
	}
	return value, err
}

// Set implements session.Store with HSET.
func (c *client) Set(ctx context.Context, key, value string) error {
	return c.conn.HSet(ctx, sessionStorageKey(c.profile), key, value).Err()
}

// Remove implements session.Store with a single HDEL, so the keys disappear atomically.
func (c *client) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.conn.HDel(ctx, sessionStorageKey(c.profile), keys...).Err()
}

// Compile-time assertion to ensure *client satisfies the session.Store interface
var _ session.Store = new(client)
