package discovery

import (
	"maps"
	"slices"
	"sync"
)

// Bus carries the discovery protocol: a broadcast request for providers and
// the announcements answering it. Dispatch is synchronous, in registration order.
type Bus struct {
	mu        sync.Mutex
	next      uint64
	announces map[uint64]func(ProviderDetail)
	requests  map[uint64]func()
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		announces: make(map[uint64]func(ProviderDetail)),
		requests:  make(map[uint64]func()),
	}
}

// ordered returns the handlers of m sorted by registration id.
func ordered[T any](m map[uint64]T) []T {
	handlers := make([]T, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		handlers = append(handlers, m[id])
	}
	return handlers
}

// OnAnnounce registers fn for every announcement. The returned func removes it.
func (b *Bus) OnAnnounce(fn func(ProviderDetail)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.announces[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.announces, id)
	}
}

// OnRequest registers fn for every discovery request. The returned func removes it.
func (b *Bus) OnRequest(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.requests[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.requests, id)
	}
}

// Announce publishes detail to every announce listener.
func (b *Bus) Announce(detail ProviderDetail) {
	b.mu.Lock()
	handlers := ordered(b.announces)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(detail)
	}
}

// RequestProviders broadcasts a discovery request.
func (b *Bus) RequestProviders() {
	b.mu.Lock()
	handlers := ordered(b.requests)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Register announces detail now and again on every later request. The
// returned func stops the replies.
func (b *Bus) Register(detail ProviderDetail) func() {
	unregister := b.OnRequest(func() {
		b.Announce(detail)
	})

	b.Announce(detail)
	return unregister
}
