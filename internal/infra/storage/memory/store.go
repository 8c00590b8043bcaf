// Package memory is an in-process session.Store backed by go-cache. Values
// never expire; the store lives as long as the process.
package memory

import (
	"context"

	"github.com/gabapcia/dappkit/internal/session"

	"github.com/patrickmn/go-cache"
)

// Store keeps session keys in a go-cache instance.
type Store struct {
	cache *cache.Cache
}

var _ session.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return "", session.ErrNotFound
	}
	return value.(string), nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (s *Store) Remove(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

// Items returns a snapshot of every stored key, for diagnostics.
func (s *Store) Items() map[string]string {
	items := s.cache.Items()

	snapshot := make(map[string]string, len(items))
	for key, item := range items {
		snapshot[key] = item.Object.(string)
	}
	return snapshot
}
