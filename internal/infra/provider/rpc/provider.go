// Package rpc exposes a JSON-RPC node with unlocked accounts (a local dev
// chain, for instance) as a wallet provider. Nodes do not push events, so
// account and chain changes are detected by polling.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"
)

// ErrNodeUnreachable is handed to Disconnect handlers when polling starts failing.
var ErrNodeUnreachable = errors.New("rpc node unreachable")

const defaultPollInterval = 4 * time.Second

// Provider adapts a jsonrpc.Client to discovery.Provider.
type Provider struct {
	discovery.Emitter

	conn     jsonrpc.Client
	interval time.Duration

	mu       sync.Mutex
	observed bool
	accounts []string
	chainID  string
	down     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ discovery.Provider = (*Provider)(nil)

type config struct {
	interval time.Duration
}

// Option configures the provider.
type Option func(*config)

// WithPollInterval sets how often accounts and chain id are compared.
// Default: 4 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

// New wraps conn. Call Start to begin emitting change events.
func New(conn jsonrpc.Client, opts ...Option) *Provider {
	cfg := config{interval: defaultPollInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Provider{
		conn:     conn,
		interval: cfg.interval,
	}
}

// Request implements discovery.Provider. Wallet-only methods are emulated:
// eth_requestAccounts reads eth_accounts, permission revocation is a no-op,
// and switching only succeeds towards the chain the node already serves.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		return p.conn.Fetch(ctx, "eth_accounts")
	case "wallet_revokePermissions":
		return json.RawMessage("null"), nil
	case "wallet_switchEthereumChain":
		return p.switchChain(ctx, params)
	default:
		return p.conn.Fetch(ctx, method, params...)
	}
}

func (p *Provider) switchChain(ctx context.Context, params []any) (json.RawMessage, error) {
	target, err := switchTarget(params)
	if err != nil {
		return nil, &jsonrpc.Error{Code: -32602, Message: err.Error()}
	}

	current, err := p.fetchChainID(ctx)
	if err != nil {
		return nil, err
	}

	if current != target {
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeUnrecognizedChain,
			Message: fmt.Sprintf("node serves chain %s, cannot switch to %s", current, target),
		}
	}

	return json.RawMessage("null"), nil
}

// switchTarget extracts the chain id from wallet_switchEthereumChain params.
func switchTarget(params []any) (chains.ChainID, error) {
	if len(params) != 1 {
		return 0, errors.New("expected a single {chainId} parameter")
	}

	raw, err := json.Marshal(params[0])
	if err != nil {
		return 0, err
	}

	var body struct {
		ChainID string `json:"chainId"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, err
	}

	return chains.ParseChainID(body.ChainID)
}

func (p *Provider) fetchChainID(ctx context.Context) (chains.ChainID, error) {
	data, err := p.conn.Fetch(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, err
	}
	return chains.ParseChainID(raw)
}

func (p *Provider) fetchAccounts(ctx context.Context) ([]string, error) {
	data, err := p.conn.Fetch(ctx, "eth_accounts")
	if err != nil {
		return nil, err
	}

	var accounts []string
	return accounts, json.Unmarshal(data, &accounts)
}

// Start launches the poll loop. It stops when ctx ends or Close is called.
func (p *Provider) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
				p.poll(ctx)
			}
		}
	}()
}

// poll compares the node's state with the last observation and emits the
// differences. The first observation only records state. Failures after a
// successful poll emit one disconnect until the node answers again.
func (p *Provider) poll(ctx context.Context) {
	accounts, err := p.fetchAccounts(ctx)
	var chainID chains.ChainID
	if err == nil {
		chainID, err = p.fetchChainID(ctx)
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		emit := p.observed && !p.down
		p.down = true
		p.mu.Unlock()

		logger.Debug(ctx, "rpc provider poll failed", "error", err)
		if emit {
			p.EmitDisconnect(fmt.Errorf("%w: %w", ErrNodeUnreachable, err))
		}
		return
	}

	p.mu.Lock()
	first := !p.observed
	accountsChanged := !first && !slices.Equal(p.accounts, accounts)
	chainChanged := !first && p.chainID != chainID.Hex()
	p.observed = true
	p.down = false
	p.accounts = accounts
	p.chainID = chainID.Hex()
	p.mu.Unlock()

	if accountsChanged {
		p.EmitAccountsChanged(accounts)
	}
	if chainChanged {
		p.EmitChainChanged(chainID.Hex())
	}
}

// Close stops the poll loop and waits for it to exit.
func (p *Provider) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
