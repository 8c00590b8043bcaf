// Package discovery finds wallet providers. Providers announce themselves on
// a Bus (in the spirit of EIP-6963) and a Registry keeps the first provider
// seen for every name.
package discovery

import (
	"context"
	"encoding/json"
	"sync"
)

// Event names as wallets emit them.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Provider is the capability a wallet exposes: JSON-RPC requests plus
// change notifications.
type Provider interface {
	// Request calls method with positional params and returns the raw result.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// Subscribe attaches one set of handlers. The returned Subscription
	// detaches exactly that set and nothing else.
	Subscribe(events Events) Subscription
}

// Events is a typed set of provider handlers. Nil handlers are skipped.
type Events struct {
	AccountsChanged func(accounts []string)
	ChainChanged    func(chainID string)
	Disconnect      func(err error)
}

// Subscription detaches a handler set. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Info describes a provider for display.
type Info struct {
	Name string `json:"name" validate:"required"`
	Icon string `json:"icon"`
	RDNS string `json:"rdns"`
	UUID string `json:"uuid"`
}

// ProviderDetail is what a provider announces: its description and the
// capability itself. The registry owns it; consumers only reference it.
type ProviderDetail struct {
	Info     Info
	Provider Provider
}

// Emitter implements the subscription half of Provider. Provider
// implementations embed it and call the Emit methods when the wallet reports
// a change.
type Emitter struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]Events
}

type subscription struct {
	once    sync.Once
	emitter *Emitter
	id      uint64
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.emitter.mu.Lock()
		defer s.emitter.mu.Unlock()
		delete(s.emitter.subs, s.id)
	})
}

// Subscribe registers events and returns its detach handle.
func (e *Emitter) Subscribe(events Events) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[uint64]Events)
	}

	e.next++
	e.subs[e.next] = events
	return &subscription{emitter: e, id: e.next}
}

// Subscribers returns how many handler sets are attached.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// snapshot copies the handler sets so callbacks run without the lock.
func (e *Emitter) snapshot() []Events {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := make([]Events, 0, len(e.subs))
	for _, ev := range e.subs {
		events = append(events, ev)
	}
	return events
}

// EmitAccountsChanged notifies every subscriber of a new account list.
func (e *Emitter) EmitAccountsChanged(accounts []string) {
	for _, ev := range e.snapshot() {
		if ev.AccountsChanged != nil {
			ev.AccountsChanged(accounts)
		}
	}
}

// EmitChainChanged notifies every subscriber of a new chain id.
func (e *Emitter) EmitChainChanged(chainID string) {
	for _, ev := range e.snapshot() {
		if ev.ChainChanged != nil {
			ev.ChainChanged(chainID)
		}
	}
}

// EmitDisconnect notifies every subscriber that the provider lost its connection.
func (e *Emitter) EmitDisconnect(err error) {
	for _, ev := range e.snapshot() {
		if ev.Disconnect != nil {
			ev.Disconnect(err)
		}
	}
}
