package discovery

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/validator"
)

// Registry collects announced providers, keeping the first one per name.
// Entries are never removed.
type Registry struct {
	mu        sync.Mutex
	providers []ProviderDetail
	byName    map[string]int
	watchers  map[uint64]func(ProviderDetail)
	next      uint64

	bus         *Bus
	render      func([]ProviderDetail)
	unsubscribe func()
}

type config struct {
	render func([]ProviderDetail)
}

// Option configures a Registry.
type Option func(*config)

// WithRenderHook runs fn with the current provider list after every
// announcement, duplicates included.
func WithRenderHook(fn func([]ProviderDetail)) Option {
	return func(c *config) {
		c.render = fn
	}
}

// NewRegistry subscribes to announcements on bus.
func NewRegistry(bus *Bus, opts ...Option) *Registry {
	cfg := config{
		render: func([]ProviderDetail) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Registry{
		byName:   make(map[string]int),
		watchers: make(map[uint64]func(ProviderDetail)),
		bus:      bus,
		render:   cfg.render,
	}
	r.unsubscribe = bus.OnAnnounce(r.handleAnnounce)

	return r
}

// handleAnnounce appends new providers and notifies watchers. Duplicate
// names are dropped but still re-render.
func (r *Registry) handleAnnounce(detail ProviderDetail) {
	ctx := context.Background()

	if err := validator.Validate(detail.Info); err != nil || detail.Provider == nil {
		logger.Warn(ctx, "ignoring malformed provider announcement",
			"wallet.name", detail.Info.Name,
			"error", err,
		)
		return
	}

	r.mu.Lock()
	_, exists := r.byName[detail.Info.Name]
	if !exists {
		r.byName[detail.Info.Name] = len(r.providers)
		r.providers = append(r.providers, detail)
	}
	providers := slices.Clone(r.providers)
	watchers := ordered(r.watchers)
	r.mu.Unlock()

	r.render(providers)

	if exists {
		logger.Debug(ctx, "duplicate provider announcement ignored", "wallet.name", detail.Info.Name)
		return
	}

	logger.Info(ctx, "provider announced",
		"wallet.name", detail.Info.Name,
		"wallet.rdns", detail.Info.RDNS,
	)

	for _, fn := range watchers {
		fn(detail)
	}
}

// OnProviderAdded registers fn for providers announced from now on. The
// returned func removes it.
func (r *Registry) OnProviderAdded(fn func(ProviderDetail)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	r.watchers[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}

// RequestProviders broadcasts a discovery request on the bus.
func (r *Registry) RequestProviders() {
	r.bus.RequestProviders()
}

// Providers returns the known providers in announcement order.
func (r *Registry) Providers() []ProviderDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.providers)
}

// Names returns the known provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.byName))
}

// Lookup finds a provider by name.
func (r *Registry) Lookup(name string) (ProviderDetail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return ProviderDetail{}, false
	}
	return r.providers[i], true
}

// Close stops listening for announcements.
func (r *Registry) Close() {
	r.unsubscribe()
}
