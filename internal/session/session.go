package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/validator"
)

// Keys of the persisted session triple.
const (
	KeyChainID    = "connectCurrentChainId"
	KeyLastWallet = "connectLastWallet"
	KeyConnected  = "connectConnected"

	connectedValue    = "true"
	rpcOverrideSuffix = "-rpc"
)

// ErrInvalidState is returned when saving a connected state without a wallet name.
var ErrInvalidState = errors.New("connected session requires a wallet name")

// State is the persisted session triple. Connected implies LastWallet is
// set, though that wallet may not have announced itself yet.
type State struct {
	ChainIDHex string
	LastWallet string
	Connected  bool
}

// ChainID parses the stored chain id.
func (s State) ChainID() (chains.ChainID, bool) {
	if s.ChainIDHex == "" {
		return 0, false
	}

	id, err := chains.ParseChainID(s.ChainIDHex)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Session is the typed view of a Store. It is the only writer of the
// session keys.
type Session struct {
	store Store
}

// New wraps store.
func New(store Store) *Session {
	return &Session{store: store}
}

// get reads key, mapping ErrNotFound to the empty string.
func (s *Session) get(ctx context.Context, key string) (string, error) {
	value, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

// Load returns the persisted state. Missing keys read as zero values.
func (s *Session) Load(ctx context.Context) (State, error) {
	var (
		state State
		errs  []error
		err   error
	)

	state.ChainIDHex, err = s.get(ctx, KeyChainID)
	errs = append(errs, err)

	state.LastWallet, err = s.get(ctx, KeyLastWallet)
	errs = append(errs, err)

	connected, err := s.get(ctx, KeyConnected)
	errs = append(errs, err)
	state.Connected = connected == connectedValue

	if err := errors.Join(errs...); err != nil {
		return State{}, fmt.Errorf("failed to load session: %w", err)
	}

	return state, nil
}

// Save persists the whole triple. The connected flag is written last so a
// partial write never claims a connection without a wallet.
func (s *Session) Save(ctx context.Context, state State) error {
	if state.Connected && state.LastWallet == "" {
		return ErrInvalidState
	}

	if err := s.store.Set(ctx, KeyChainID, state.ChainIDHex); err != nil {
		return fmt.Errorf("failed to save chain id: %w", err)
	}

	if err := s.store.Set(ctx, KeyLastWallet, state.LastWallet); err != nil {
		return fmt.Errorf("failed to save last wallet: %w", err)
	}

	if !state.Connected {
		return s.store.Remove(ctx, KeyConnected)
	}

	if err := s.store.Set(ctx, KeyConnected, connectedValue); err != nil {
		return fmt.Errorf("failed to save connected flag: %w", err)
	}

	return nil
}

// SetChainID updates the stored chain id only.
func (s *Session) SetChainID(ctx context.Context, id chains.ChainID) error {
	if err := s.store.Set(ctx, KeyChainID, id.Hex()); err != nil {
		return fmt.Errorf("failed to save chain id: %w", err)
	}
	return nil
}

// Clear removes all three session keys in one store call.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, KeyChainID, KeyLastWallet, KeyConnected); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func rpcOverrideKey(network string) string {
	return network + rpcOverrideSuffix
}

// RPCOverride implements chains.RPCOverrides. Store failures are logged and
// read as "no override".
func (s *Session) RPCOverride(ctx context.Context, network string) (string, bool) {
	url, err := s.get(ctx, rpcOverrideKey(network))
	if err != nil {
		logger.Warn(ctx, "failed to read rpc override",
			"chain.network", network,
			"error", err,
		)
		return "", false
	}

	return url, url != ""
}

// SetRPCOverride stores a custom endpoint for network. An empty url removes
// the override.
func (s *Session) SetRPCOverride(ctx context.Context, network, url string) error {
	if url == "" {
		return s.ClearRPCOverride(ctx, network)
	}

	if err := validator.Var(url, "rpc_url"); err != nil {
		return err
	}

	return s.store.Set(ctx, rpcOverrideKey(network), url)
}

// ClearRPCOverride restores the catalog endpoint for network.
func (s *Session) ClearRPCOverride(ctx context.Context, network string) error {
	return s.store.Remove(ctx, rpcOverrideKey(network))
}

var _ chains.RPCOverrides = (*Session)(nil)
