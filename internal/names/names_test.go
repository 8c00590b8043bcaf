package names

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wallet          = common.HexToAddress("0x1111111111111111111111111111111111111111")
	reverseResolver = common.HexToAddress("0x2222222222222222222222222222222222222222")
	forwardResolver = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// chain answers contract calls from per-method handlers. Methods without a
// handler revert.
type chain struct {
	calls    atomic.Int32
	handlers map[string]func(to common.Address, args []any) []any
}

func (c *chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls.Add(1)

	contract := ensResolverABI
	switch *msg.To {
	case WNSContract:
		contract = wnsABI
	case ENSRegistry:
		contract = ensRegistryABI
	}

	method, err := contract.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	handler, ok := c.handlers[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	return packOutputs(method, handler(*msg.To, args))
}

func packOutputs(method *abi.Method, values []any) ([]byte, error) {
	return method.Outputs.Pack(values...)
}

func (c *chain) dialer() Dialer {
	return func(context.Context) (ContractCaller, func(), error) {
		return c, func() {}, nil
	}
}

// ensChain serves a verified ENS record for wallet.
func ensChain(name, avatar string) *chain {
	reverse := reverseNode(wallet)
	forward := namehash(name)

	return &chain{handlers: map[string]func(common.Address, []any) []any{
		"resolver": func(_ common.Address, args []any) []any {
			switch common.Hash(args[0].([32]byte)) {
			case reverse:
				return []any{reverseResolver}
			case forward:
				return []any{forwardResolver}
			}
			return []any{common.Address{}}
		},
		"name": func(_ common.Address, _ []any) []any { return []any{name} },
		"addr": func(_ common.Address, _ []any) []any { return []any{wallet} },
		"text": func(_ common.Address, _ []any) []any { return []any{avatar} },
	}}
}

func TestNamehash(t *testing.T) {
	t.Run("empty name is the zero node", func(t *testing.T) {
		assert.Equal(t, common.Hash{}, namehash(""))
	})

	t.Run("eth node", func(t *testing.T) {
		assert.Equal(t,
			common.HexToHash("0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"),
			namehash("eth"),
		)
	})

	t.Run("foo.eth node", func(t *testing.T) {
		assert.Equal(t,
			common.HexToHash("0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"),
			namehash("foo.eth"),
		)
	})
}

func TestParseOrder(t *testing.T) {
	t.Run("accepts both orders", func(t *testing.T) {
		o, err := ParseOrder("ens-first")
		require.NoError(t, err)
		assert.Equal(t, OrderENSFirst, o)

		o, err = ParseOrder(" wns-first ")
		require.NoError(t, err)
		assert.Equal(t, OrderWNSFirst, o)
	})

	t.Run("rejects anything else", func(t *testing.T) {
		_, err := ParseOrder("ens-only")
		assert.ErrorIs(t, err, ErrInvalidOrder)
	})
}

func TestService_Resolve(t *testing.T) {
	t.Run("wns first returns the wns name", func(t *testing.T) {
		c := ensChain("alice.eth", "")
		c.handlers["reverseResolve"] = func(_ common.Address, _ []any) []any { return []any{"alice.wei"} }

		s, err := New(c.dialer())
		require.NoError(t, err)

		result, ok := s.Resolve(t.Context(), wallet.Hex())
		require.True(t, ok)
		assert.Equal(t, Result{Name: "alice.wei", Source: SourceWNS}, result)
	})

	t.Run("ens first returns the ens name and avatar", func(t *testing.T) {
		c := ensChain("alice.eth", "ipfs://QmAvatar")
		c.handlers["reverseResolve"] = func(_ common.Address, _ []any) []any { return []any{"alice.wei"} }

		s, err := New(c.dialer(), WithOrder(OrderENSFirst))
		require.NoError(t, err)

		result, ok := s.Resolve(t.Context(), wallet.Hex())
		require.True(t, ok)
		assert.Equal(t, Result{Name: "alice.eth", Avatar: "https://ipfs.io/ipfs/QmAvatar", Source: SourceENS}, result)
	})

	t.Run("falls back when the first service has no name", func(t *testing.T) {
		c := ensChain("alice.eth", "https://example.com/a.png")
		c.handlers["reverseResolve"] = func(_ common.Address, _ []any) []any { return []any{""} }

		s, err := New(c.dialer())
		require.NoError(t, err)

		result, ok := s.Resolve(t.Context(), wallet.Hex())
		require.True(t, ok)
		assert.Equal(t, SourceENS, result.Source)
		assert.Equal(t, "https://example.com/a.png", result.Avatar)
	})

	t.Run("failures read as no name", func(t *testing.T) {
		c := &chain{handlers: map[string]func(common.Address, []any) []any{}}

		s, err := New(c.dialer())
		require.NoError(t, err)

		_, ok := s.Resolve(t.Context(), wallet.Hex())
		assert.False(t, ok)
	})

	t.Run("ens name that does not point back is ignored", func(t *testing.T) {
		c := ensChain("mallory.eth", "")
		c.handlers["addr"] = func(_ common.Address, _ []any) []any {
			return []any{common.HexToAddress("0x4444444444444444444444444444444444444444")}
		}

		s, err := New(c.dialer(), WithOrder(OrderENSFirst))
		require.NoError(t, err)

		_, ok := s.Resolve(t.Context(), wallet.Hex())
		assert.False(t, ok)
	})

	t.Run("dial failure reads as no name", func(t *testing.T) {
		s, err := New(func(context.Context) (ContractCaller, func(), error) {
			return nil, nil, errors.New("no route to host")
		})
		require.NoError(t, err)

		_, ok := s.Resolve(t.Context(), wallet.Hex())
		assert.False(t, ok)
	})

	t.Run("invalid address is not looked up", func(t *testing.T) {
		c := ensChain("alice.eth", "")

		s, err := New(c.dialer())
		require.NoError(t, err)

		_, ok := s.Resolve(t.Context(), "not-an-address")
		assert.False(t, ok)
		assert.Zero(t, c.calls.Load())
	})

	t.Run("results are cached per order", func(t *testing.T) {
		c := ensChain("alice.eth", "")
		c.handlers["reverseResolve"] = func(_ common.Address, _ []any) []any { return []any{"alice.wei"} }

		s, err := New(c.dialer(), WithCacheTTL(time.Minute))
		require.NoError(t, err)

		_, ok := s.Resolve(t.Context(), wallet.Hex())
		require.True(t, ok)
		calls := c.calls.Load()

		_, ok = s.Resolve(t.Context(), wallet.Hex())
		require.True(t, ok)
		assert.Equal(t, calls, c.calls.Load())

		require.NoError(t, s.SetOrder(OrderENSFirst))
		result, ok := s.Resolve(t.Context(), wallet.Hex())
		require.True(t, ok)
		assert.Equal(t, SourceENS, result.Source)
	})

	t.Run("invalid order is rejected", func(t *testing.T) {
		_, err := New(nil, WithOrder("random"))
		assert.ErrorIs(t, err, ErrInvalidOrder)

		s, err := New(nil)
		require.NoError(t, err)
		assert.ErrorIs(t, s.SetOrder("random"), ErrInvalidOrder)
		assert.Equal(t, OrderWNSFirst, s.Order())
	})
}
