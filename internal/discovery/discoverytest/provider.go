// Package discoverytest provides a scriptable in-memory wallet provider for tests.
package discoverytest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"
)

// Handler answers one RPC method.
type Handler func(params ...any) (any, error)

// Call records one request received by the provider.
type Call struct {
	Method string
	Params []any
}

// Provider is a discovery.Provider whose responses are set per method.
// Methods without a handler fail with an EIP-1193 "unsupported method" error.
type Provider struct {
	discovery.Emitter

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

var _ discovery.Provider = (*Provider)(nil)

// New returns a provider with no handlers.
func New() *Provider {
	return &Provider{handlers: make(map[string]Handler)}
}

// Handle sets the handler for method.
func (p *Provider) Handle(method string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = h
}

// Respond makes method always return result.
func (p *Provider) Respond(method string, result any) {
	p.Handle(method, func(...any) (any, error) { return result, nil })
}

// Fail makes method always return err.
func (p *Provider) Fail(method string, err error) {
	p.Handle(method, func(...any) (any, error) { return nil, err })
}

// Sequence answers method with results in order, repeating the last one.
func (p *Provider) Sequence(method string, results ...any) {
	var (
		mu sync.Mutex
		i  int
	)
	p.Handle(method, func(...any) (any, error) {
		mu.Lock()
		defer mu.Unlock()

		result := results[min(i, len(results)-1)]
		i++
		return result, nil
	})
}

// Request implements discovery.Provider.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Method: method, Params: params})
	h, ok := p.handlers[method]
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !ok {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeUnsupported, Message: "unsupported method " + method}
	}

	result, err := h(params...)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

// Calls returns the requests received for method, or all requests when
// method is empty.
func (p *Provider) Calls(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()

	var calls []Call
	for _, c := range p.calls {
		if method == "" || c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}

// Detail wraps p in a ProviderDetail named name.
func (p *Provider) Detail(name string) discovery.ProviderDetail {
	return discovery.ProviderDetail{
		Info:     discovery.Info{Name: name, RDNS: "test." + name},
		Provider: p,
	}
}
