package wallet

import (
	"context"
	"encoding/json"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
)

// IsConnected reports what the persisted session claims. It may be true
// before RestoreState has confirmed the wallet.
func (s *service) IsConnected(ctx context.Context) bool {
	state, err := s.session.Load(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to read session", "error", err)
		return false
	}
	return state.Connected
}

// Account asks the bound provider for its first account.
func (s *service) Account(ctx context.Context) (string, bool) {
	p, ok := s.Provider()
	if !ok {
		return "", false
	}

	raw, err := p.Request(ctx, "eth_accounts")
	if err != nil {
		logger.Warn(ctx, "failed to get account", "error", err)
		return "", false
	}

	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil || len(accounts) == 0 {
		return "", false
	}
	return accounts[0], true
}

// ChainID asks the bound provider for its current chain.
func (s *service) ChainID(ctx context.Context) (chains.ChainID, bool) {
	p, ok := s.Provider()
	if !ok {
		return 0, false
	}

	raw, err := p.Request(ctx, "eth_chainId")
	if err != nil {
		logger.Warn(ctx, "failed to get chain id", "error", err)
		return 0, false
	}

	id, err := decodeChainID(raw)
	if err != nil {
		logger.Warn(ctx, "failed to get chain id", "error", err)
		return 0, false
	}
	return id, true
}
