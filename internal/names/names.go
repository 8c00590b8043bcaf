// Package names resolves a wallet address to a human-readable name using the
// Wei Name Service and ENS reverse records on Ethereum mainnet.
package names

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gabapcia/dappkit/internal/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
)

// ErrInvalidOrder is returned for an unknown resolution order.
var ErrInvalidOrder = errors.New(`invalid name resolution order, use "wns-first" or "ens-first"`)

// Order selects which service is asked first.
type Order string

const (
	OrderWNSFirst Order = "wns-first"
	OrderENSFirst Order = "ens-first"
)

// ParseOrder validates s as an Order.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.TrimSpace(s)); o {
	case OrderWNSFirst, OrderENSFirst:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrder, s)
	}
}

// Source names the service that produced a Result.
type Source string

const (
	SourceWNS Source = "wns"
	SourceENS Source = "ens"
)

// Result is a resolved name. Avatar is only ever set by ENS.
type Result struct {
	Name   string
	Avatar string
	Source Source
}

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dialer opens a ContractCaller for a single lookup. The returned func
// releases it.
type Dialer func(ctx context.Context) (ContractCaller, func(), error)

// resolver looks up one naming service. An empty Result with a nil error
// means the address has no name there.
type resolver interface {
	resolve(ctx context.Context, caller ContractCaller, address common.Address) (Result, error)
}

type config struct {
	order    Order
	cacheTTL time.Duration
}

// Option configures the Service.
type Option func(*config)

// WithOrder sets the initial resolution order. Default: wns-first.
func WithOrder(o Order) Option {
	return func(c *config) {
		c.order = o
	}
}

// WithCacheTTL sets how long a resolved name is reused. Default: 10 minutes.
func WithCacheTTL(d time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = d
	}
}

// Service resolves names in the configured order. Lookup failures never
// surface; they read as "no name".
type Service struct {
	dial  Dialer
	cache *cache.Cache
	wns   resolver
	ens   resolver

	mu    sync.RWMutex
	order Order
}

// New creates a Service that opens a caller through dial for every lookup
// that misses the cache.
func New(dial Dialer, opts ...Option) (*Service, error) {
	cfg := config{
		order:    OrderWNSFirst,
		cacheTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	order, err := ParseOrder(string(cfg.order))
	if err != nil {
		return nil, err
	}

	return &Service{
		dial:  dial,
		cache: cache.New(cfg.cacheTTL, 2*cfg.cacheTTL),
		wns:   wnsResolver{},
		ens:   ensResolver{},
		order: order,
	}, nil
}

// Order returns the current resolution order.
func (s *Service) Order() Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order
}

// SetOrder changes the resolution order for later lookups.
func (s *Service) SetOrder(order Order) error {
	order, err := ParseOrder(string(order))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.order = order
	s.mu.Unlock()
	return nil
}

// Resolve returns the first name found for address, trying the services in
// the configured order.
func (s *Service) Resolve(ctx context.Context, address string) (Result, bool) {
	if !common.IsHexAddress(address) {
		return Result{}, false
	}

	order := s.Order()
	key := string(order) + ":" + strings.ToLower(address)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(Result), true
	}

	caller, release, err := s.dial(ctx)
	if err != nil {
		logger.Debug(ctx, "name resolution unavailable", "wallet.address", address, "error", err)
		return Result{}, false
	}
	defer release()

	chain := []resolver{s.wns, s.ens}
	if order == OrderENSFirst {
		chain = []resolver{s.ens, s.wns}
	}

	addr := common.HexToAddress(address)
	for _, r := range chain {
		result, err := r.resolve(ctx, caller, addr)
		if err != nil {
			logger.Debug(ctx, "name lookup failed", "wallet.address", address, "error", err)
			continue
		}

		if result.Name != "" {
			s.cache.SetDefault(key, result)
			return result, true
		}
	}

	return Result{}, false
}
