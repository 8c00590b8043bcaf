// Package redis is a session.Store backed by Redis. Every profile owns one
// Redis hash, so clearing the session is a single HDEL.
package redis

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// defaultProfile names the hash used when no profile is configured.
const defaultProfile = "default"

type client struct {
	conn    *redis.Client
	profile string
}

func (c *client) Close() error {
	return c.conn.Close()
}

type config struct {
	username string
	password string
	db       int
	profile  string
}

// Option configures the Redis connection.
type Option func(*config)

// WithCredentials authenticates with an ACL user.
func WithCredentials(username, password string) Option {
	return func(c *config) {
		c.username = username
		c.password = password
	}
}

// WithDB selects the logical database.
func WithDB(db int) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithProfile isolates sessions of different users sharing one server.
func WithProfile(profile string) Option {
	return func(c *config) {
		if profile != "" {
			c.profile = profile
		}
	}
}

// NewClient connects to addr and verifies the connection with PING.
func NewClient(ctx context.Context, addr string, opts ...Option) (*client, error) {
	cfg := config{profile: defaultProfile}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.username,
		Password: cfg.password,
		DB:       cfg.db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &client{
		conn:    conn,
		profile: cfg.profile,
	}, nil
}
