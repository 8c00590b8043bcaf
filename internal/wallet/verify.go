package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/resilience/retry"
	"github.com/gabapcia/dappkit/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errEmptyAccounts = errors.New("provider reported no accounts")

func (s *service) VerifyConnectionState(ctx context.Context, opts VerifyOptions) (bool, error) {
	key := fmt.Sprintf("%t/%d/%s", opts.AllowDisconnect, opts.Retries, opts.RetryDelay)

	v, err, shared := s.flight.Do(key, func() (any, error) {
		return s.verify(ctx, opts)
	})
	if shared {
		logger.Debug(ctx, "joined in-flight reconciliation")
	}

	connected, _ := v.(bool)
	return connected, err
}

// verify runs one reconciliation pass. Attempts are sequential with a fixed
// delay; RPC failures only count as a failed attempt. A pass that started
// before a newer connect, disconnect or account change discards its result.
func (s *service) verify(ctx context.Context, opts VerifyOptions) (connected bool, err error) {
	ctx, span := tracer.Start(ctx, "wallet.VerifyConnectionState", trace.WithAttributes(
		attribute.Bool("wallet.allow_disconnect", opts.AllowDisconnect),
		attribute.Int("wallet.retries", opts.Retries),
	))
	defer func() { endSpan(span, err) }()

	stored, err := s.session.Load(ctx)
	if err != nil {
		return false, err
	}
	if !stored.Connected {
		return false, nil
	}

	s.mu.Lock()
	detail, bound := s.detail, s.sub != nil
	gen := s.generation
	previous := s.state
	s.mu.Unlock()

	if !bound {
		var ok bool
		if detail, ok = s.providers.Lookup(stored.LastWallet); !ok {
			logger.Debug(ctx, "persisted wallet not announced yet", "wallet.name", stored.LastWallet)
			return false, nil
		}
	}

	s.mu.Lock()
	if s.generation == gen {
		s.state = StateReconciling
	}
	s.mu.Unlock()

	var (
		accounts []string
		chainID  chains.ChainID
	)

	r := retry.New(
		retry.WithAttempts(uint(max(opts.Retries, 0))+1),
		retry.WithDelay(opts.RetryDelay),
		retry.WithMaxDelay(opts.RetryDelay),
		retry.WithFixedDelay(),
		retry.WithOnRetry(func(attempt uint, err error) {
			logger.Debug(ctx, "reconciliation attempt failed", "wallet.attempt", attempt+1, "error", err)
		}),
	)

	err = r.Execute(ctx, func() error {
		a, id, err := requestState(ctx, detail.Provider, "eth_accounts")
		if err != nil {
			return err
		}
		if len(a) == 0 {
			return errEmptyAccounts
		}

		accounts, chainID = a, id
		return nil
	})

	s.writeMu.Lock()
	s.mu.Lock()
	if s.generation != gen {
		connected = s.state == StateConnected
		s.mu.Unlock()
		s.writeMu.Unlock()
		logger.Debug(ctx, "discarding stale reconciliation result")
		return connected, nil
	}

	if err == nil {
		s.generation++
		s.state = StateConnected
		s.bindLocked(detail)
		s.chainID = chainID
		s.setAccountLocked(accounts[0])
		s.mu.Unlock()

		changed, err := s.persistConfirmed(ctx, detail.Info.Name, chainID)
		s.writeMu.Unlock()
		if err != nil {
			s.publishDisplay()
			return true, err
		}

		s.confirmed(ctx, chainID, changed)
		return true, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.state = previous
		s.mu.Unlock()
		s.writeMu.Unlock()
		return false, ctxErr
	}

	if !opts.AllowDisconnect {
		s.state = previous
		s.mu.Unlock()
		s.writeMu.Unlock()
		logger.Debug(ctx, "wallet not confirmed, keeping session", "error", err)
		return false, nil
	}
	s.mu.Unlock()

	logger.Info(ctx, "wallet no longer authorized, disconnecting", "wallet.name", stored.LastWallet)
	handler, err := s.reset(ctx)
	s.writeMu.Unlock()

	s.disconnected(ctx, handler)
	return false, err
}

// persistConfirmed saves a confirmed session and reports whether its chain
// differs from the one stored before. Callers hold s.writeMu.
func (s *service) persistConfirmed(ctx context.Context, name string, chainID chains.ChainID) (bool, error) {
	before, err := s.session.Load(ctx)
	if err != nil {
		return false, err
	}

	state := session.State{ChainIDHex: chainID.Hex(), LastWallet: name, Connected: true}
	if err := s.session.Save(ctx, state); err != nil {
		return false, err
	}

	previous, ok := before.ChainID()
	return !ok || previous != chainID, nil
}

// confirmed publishes what a successful reconciliation changed.
func (s *service) confirmed(ctx context.Context, chainID chains.ChainID, changed bool) {
	s.publishDisplay()

	s.mu.Lock()
	s.evaluateNoticeLocked(ctx, chainID)
	handler := s.onChainChange
	s.mu.Unlock()

	if !changed {
		return
	}

	logger.Info(ctx, "wallet chain changed", "chain.id", chainID.String())
	if handler != nil {
		handler(s.chainChangeEvent(chainID))
	}
}

func (s *service) RestoreState(ctx context.Context) error {
	s.mu.Lock()
	s.initializing = true
	s.mu.Unlock()

	stored, err := s.session.Load(ctx)
	if err != nil {
		s.mu.Lock()
		s.initializing = false
		s.mu.Unlock()
		return err
	}

	s.providers.RequestProviders()

	var verifyErr error
	if stored.Connected && stored.LastWallet != "" {
		if _, ok := s.providers.Lookup(stored.LastWallet); ok {
			_, verifyErr = s.VerifyConnectionState(ctx, s.defaultVerifyOptions())
		} else {
			logger.Info(ctx, "waiting for persisted wallet to announce", "wallet.name", stored.LastWallet)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.initializing = false
	if s.state == StateConnected {
		s.evaluateNoticeLocked(ctx, s.chainID)
	}
	return verifyErr
}

func (s *service) Resume(ctx context.Context) bool {
	connected, err := s.VerifyConnectionState(ctx, s.defaultVerifyOptions())
	if err != nil {
		logger.Warn(ctx, "reconciliation after resume failed", "error", err)
	}
	return connected
}

// handleProviderAdded reconciles when the persisted wallet announces itself
// after startup. RestoreState covers announcements made while it runs.
func (s *service) handleProviderAdded(detail discovery.ProviderDetail) {
	s.mu.Lock()
	skip := s.initializing || s.sub != nil
	s.mu.Unlock()
	if skip {
		return
	}

	s.background(func(ctx context.Context) {
		stored, err := s.session.Load(ctx)
		if err != nil || !stored.Connected || stored.LastWallet != detail.Info.Name {
			return
		}

		logger.Info(ctx, "persisted wallet announced, reconciling", "wallet.name", detail.Info.Name)
		s.VerifyConnectionState(ctx, s.defaultVerifyOptions())
	})
}
