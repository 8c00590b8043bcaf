// Package session persists the wallet session across process restarts: the
// chain id, the last connected wallet and the connected flag, plus the
// user's RPC endpoint overrides.
package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store when the key has no value.
var ErrNotFound = errors.New("session key not found")

// Store is a string key/value persistence backend.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes every given key in a single call. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}
