package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// requestState asks p for its accounts (through accountsMethod) and chain id
// concurrently.
func requestState(ctx context.Context, p discovery.Provider, accountsMethod string) ([]string, chains.ChainID, error) {
	var (
		accounts []string
		chainID  chains.ChainID
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, err := p.Request(gctx, accountsMethod)
		if err != nil {
			return fmt.Errorf("%s: %w", accountsMethod, err)
		}
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return fmt.Errorf("%s: %w", accountsMethod, err)
		}
		return nil
	})

	g.Go(func() error {
		raw, err := p.Request(gctx, "eth_chainId")
		if err != nil {
			return fmt.Errorf("eth_chainId: %w", err)
		}

		id, err := decodeChainID(raw)
		if err != nil {
			return fmt.Errorf("eth_chainId: %w", err)
		}
		chainID = id
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return accounts, chainID, nil
}

// decodeChainID accepts the hex string wallets return as well as a bare
// number, which some providers send.
func decodeChainID(raw json.RawMessage) (chains.ChainID, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	return chains.ParseChainID(v)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *service) ConnectWallet(ctx context.Context, name string) (conn Connection, err error) {
	ctx, span := tracer.Start(ctx, "wallet.ConnectWallet", trace.WithAttributes(attribute.String("wallet.name", name)))
	defer func() { endSpan(span, err) }()

	if s.ctx.Err() != nil {
		return Connection{}, ErrClosed
	}

	detail, ok := s.providers.Lookup(name)
	if !ok {
		logger.Error(ctx, "wallet connection failed", "wallet.name", name, "error", ErrProviderNotFound)
		return Connection{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	s.mu.Lock()
	previous := s.state
	s.state = StateConnecting
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	fail := func(err error) (Connection, error) {
		s.mu.Lock()
		if s.generation == gen {
			s.state = previous
		}
		s.mu.Unlock()

		logger.Error(ctx, "wallet connection failed", "wallet.name", name, "error", err)
		return Connection{}, err
	}

	accounts, chainID, err := requestState(ctx, detail.Provider, "eth_requestAccounts")
	if err != nil {
		return fail(fmt.Errorf("failed to connect %s: %w", name, err))
	}
	if len(accounts) == 0 {
		return fail(fmt.Errorf("failed to connect %s: %w", name, ErrNoAccounts))
	}

	s.writeMu.Lock()
	state := session.State{ChainIDHex: chainID.Hex(), LastWallet: name, Connected: true}
	if err := s.session.Save(ctx, state); err != nil {
		s.writeMu.Unlock()
		return fail(err)
	}

	s.mu.Lock()
	s.generation++
	s.state = StateConnected
	s.bindLocked(detail)
	s.chainID = chainID
	s.setAccountLocked(accounts[0])
	s.evaluateNoticeLocked(ctx, chainID)
	handler := s.onConnect
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.publishDisplay()

	logger.Info(ctx, "wallet connected",
		"wallet.name", name,
		"wallet.address", accounts[0],
		"chain.id", chainID.String(),
	)

	if handler != nil {
		handler(ConnectEvent{
			Accounts:   accounts,
			ChainID:    chainID,
			ChainIDHex: chainID.Hex(),
			Provider:   name,
		})
	}

	return Connection{Accounts: accounts, ChainID: chainID, Provider: detail.Provider}, nil
}

// bindLocked attaches the manager's handlers to detail's provider. The
// previous handler set is detached only when the provider instance changes.
func (s *service) bindLocked(detail discovery.ProviderDetail) {
	if s.sub != nil && s.detail.Provider == detail.Provider {
		s.detail = detail
		return
	}

	s.unbindLocked()

	p := detail.Provider
	s.detail = detail
	s.sub = p.Subscribe(discovery.Events{
		AccountsChanged: func(accounts []string) { s.handleAccountsChanged(p, accounts) },
		ChainChanged:    func(chainID string) { s.handleChainChanged(p, chainID) },
		Disconnect:      func(err error) { s.handleDisconnect(p, err) },
	})
}

func (s *service) unbindLocked() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.sub = nil
	s.detail = discovery.ProviderDetail{}
}

// isBound reports whether p is the provider the manager listens to. Events
// from a provider that was swapped out are dropped.
func (s *service) isBound(p discovery.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil && s.detail.Provider == p
}

func (s *service) handleAccountsChanged(p discovery.Provider, accounts []string) {
	if !s.isBound(p) {
		return
	}

	if len(accounts) == 0 {
		s.mu.Lock()
		s.state = StateReconciling
		s.mu.Unlock()

		s.background(func(ctx context.Context) {
			s.VerifyConnectionState(ctx, s.defaultVerifyOptions())
		})
		return
	}

	s.mu.Lock()
	s.generation++
	s.state = StateConnected
	s.setAccountLocked(accounts[0])
	s.mu.Unlock()

	s.publishDisplay()
	logger.Info(s.ctx, "wallet account changed", "wallet.address", accounts[0])
}

func (s *service) handleChainChanged(p discovery.Provider, raw string) {
	if !s.isBound(p) {
		return
	}

	id, err := chains.ParseChainID(raw)
	if err != nil {
		logger.Warn(s.ctx, "ignoring chain change", "chain.id", raw, "error", err)
		return
	}

	if err := s.applyChain(s.ctx, id); err != nil {
		logger.Warn(s.ctx, "failed to persist chain change", "chain.id", id.String(), "error", err)
	}
}

func (s *service) handleDisconnect(p discovery.Provider, err error) {
	if !s.isBound(p) {
		return
	}

	logger.Info(s.ctx, "wallet provider disconnected", "error", err)
	s.background(func(ctx context.Context) {
		s.VerifyConnectionState(ctx, s.defaultVerifyOptions())
	})
}

// applyChain persists id and publishes a chain change when it differs from
// the stored chain id.
func (s *service) applyChain(ctx context.Context, id chains.ChainID) error {
	changed, handler, err := s.persistChain(ctx, id)
	if err != nil || !changed {
		return err
	}

	logger.Info(ctx, "wallet chain changed", "chain.id", id.String(), "chain.allowed", s.chains.IsAllowed(id))
	if handler != nil {
		handler(s.chainChangeEvent(id))
	}
	return nil
}

// persistChain compares and stores id in one step, so two deliveries of the
// same chain report a change at most once.
func (s *service) persistChain(ctx context.Context, id chains.ChainID) (bool, func(ChainChangeEvent), error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	bound := s.sub != nil
	s.mu.Unlock()
	if !bound {
		return false, nil, ErrNotConnected
	}

	stored, err := s.session.Load(ctx)
	if err != nil {
		return false, nil, err
	}
	previous, hadPrevious := stored.ChainID()

	if err := s.session.SetChainID(ctx, id); err != nil {
		return false, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chainID = id
	s.evaluateNoticeLocked(ctx, id)
	return !hadPrevious || previous != id, s.onChainChange, nil
}

func (s *service) chainChangeEvent(id chains.ChainID) ChainChangeEvent {
	return ChainChangeEvent{
		ChainID:    id,
		HexChainID: id.Hex(),
		Name:       s.chains.DisplayName(id),
		Allowed:    s.chains.IsAllowed(id),
	}
}

func (s *service) SwitchNetwork(ctx context.Context, network chains.Network) (err error) {
	ctx, span := tracer.Start(ctx, "wallet.SwitchNetwork", trace.WithAttributes(attribute.String("chain.id", network.ChainID.String())))
	defer func() { endSpan(span, err) }()

	p, ok := s.Provider()
	if !ok {
		return ErrNotConnected
	}

	params := map[string]string{"chainId": network.ChainID.Hex()}
	if _, err := p.Request(ctx, "wallet_switchEthereumChain", params); err != nil {
		logger.Error(ctx, "network switch failed", "chain.id", network.ChainID.String(), "error", err)
		return fmt.Errorf("failed to switch to %s: %w", network.Name, err)
	}

	return s.applyChain(ctx, network.ChainID)
}

func (s *service) Disconnect(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "wallet.Disconnect")
	defer func() { endSpan(span, err) }()

	stored, err := s.session.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, bound := s.detail.Provider, s.sub != nil
	idle := s.state == StateDisconnected && !bound
	s.mu.Unlock()

	if idle && !stored.Connected {
		return nil
	}

	if !bound {
		if detail, ok := s.providers.Lookup(stored.LastWallet); ok {
			p, bound = detail.Provider, true
		}
	}

	if bound {
		revoke := map[string]any{"eth_accounts": map[string]any{}}
		if _, err := p.Request(ctx, "wallet_revokePermissions", revoke); err != nil {
			logger.Warn(ctx, "failed to revoke wallet permissions", "error", err)
		}
	}

	return s.teardown(ctx)
}

// teardown clears the session and the runtime state, then publishes the
// disconnect. In-memory state is reset even when the store fails.
func (s *service) teardown(ctx context.Context) error {
	s.writeMu.Lock()
	handler, err := s.reset(ctx)
	s.writeMu.Unlock()

	s.disconnected(ctx, handler)
	return err
}

// reset clears the session and the runtime state and returns the
// disconnect handler to run. Callers hold s.writeMu.
func (s *service) reset(ctx context.Context) (func(), error) {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()

	err := s.session.Clear(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateDisconnected
	s.unbindLocked()
	s.chainID = 0
	s.clearAccountLocked()
	if s.noticeID != "" {
		s.cfg.notifier.Hide(s.noticeID)
		s.noticeID = ""
	}
	return s.onDisconnect, err
}

func (s *service) disconnected(ctx context.Context, handler func()) {
	s.publishDisplay()
	logger.Info(ctx, "wallet disconnected")

	if handler != nil {
		handler()
	}
}
