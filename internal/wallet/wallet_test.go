package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/discovery/discoverytest"
	"github.com/gabapcia/dappkit/internal/infra/storage/memory"
	"github.com/gabapcia/dappkit/internal/names"
	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/dappkit/internal/session"
	"github.com/gabapcia/dappkit/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	walletName = "Acme Wallet"
	account    = "0xAbC0000000000000000000000000000000001234"
	otherAddr  = "0xDeF0000000000000000000000000000000005678"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeNotifier struct {
	mu     sync.Mutex
	next   int
	shown  []string
	active map[string]string
}

func (n *fakeNotifier) Show(message string, _ notification.Severity, _ ...notification.NoticeOption) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.next++
	id := fmt.Sprintf("notice-%d", n.next)
	if n.active == nil {
		n.active = make(map[string]string)
	}
	n.active[id] = message
	n.shown = append(n.shown, message)
	return id
}

func (n *fakeNotifier) Hide(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.active, id)
}

func (n *fakeNotifier) visible() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var messages []string
	for _, m := range n.active {
		messages = append(messages, m)
	}
	return messages
}

func (n *fakeNotifier) shownCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

type fixture struct {
	bus       *discovery.Bus
	providers *discovery.Registry
	session   *session.Session
	notifier  *fakeNotifier
	svc       wallet.Service
}

func newFixture(t *testing.T, store session.Store, opts ...wallet.Option) *fixture {
	t.Helper()

	bus := discovery.NewBus()
	providers := discovery.NewRegistry(bus)

	registry, err := chains.NewRegistry(chains.DefaultNetworks())
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	sess := session.New(store)

	opts = append([]wallet.Option{
		wallet.WithNotifier(notifier),
		wallet.WithVerifyRetryDelay(time.Millisecond),
	}, opts...)
	svc := wallet.New(providers, sess, registry, opts...)

	t.Cleanup(func() {
		svc.Close()
		providers.Close()
	})

	return &fixture{
		bus:       bus,
		providers: providers,
		session:   sess,
		notifier:  notifier,
		svc:       svc,
	}
}

// acme scripts a wallet holding accounts on chain.
func acme(accounts []string, chain string) *discoverytest.Provider {
	p := discoverytest.New()
	p.Respond("eth_requestAccounts", accounts)
	p.Respond("eth_accounts", accounts)
	p.Respond("eth_chainId", chain)
	return p
}

func (f *fixture) register(p *discoverytest.Provider) {
	f.bus.Register(p.Detail(walletName))
}

func (f *fixture) connect(t *testing.T, p *discoverytest.Provider) {
	t.Helper()

	f.register(p)
	_, err := f.svc.ConnectWallet(t.Context(), walletName)
	require.NoError(t, err)
}

func (f *fixture) stored(t *testing.T) session.State {
	t.Helper()

	state, err := f.session.Load(t.Context())
	require.NoError(t, err)
	return state
}

// gatedStore parks the first write of key once armed, until release closes.
type gatedStore struct {
	session.Store

	key     string
	armed   atomic.Bool
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func newGatedStore(key string) *gatedStore {
	return &gatedStore{
		Store:   memory.New(),
		key:     key,
		parked:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) Set(ctx context.Context, key, value string) error {
	if key == s.key && s.armed.Load() {
		s.once.Do(func() {
			close(s.parked)
			<-s.release
		})
	}
	return s.Store.Set(ctx, key, value)
}

// slowStore delays every write of key.
type slowStore struct {
	session.Store

	key   string
	delay time.Duration
}

func (s *slowStore) Set(ctx context.Context, key, value string) error {
	if key == s.key {
		time.Sleep(s.delay)
	}
	return s.Store.Set(ctx, key, value)
}

func TestService_ConnectWallet(t *testing.T) {
	t.Run("persists the session and fires connect", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.register(p)

		var events []wallet.ConnectEvent
		f.svc.OnConnect(func(e wallet.ConnectEvent) { events = append(events, e) })

		conn, err := f.svc.ConnectWallet(t.Context(), walletName)
		require.NoError(t, err)

		assert.Equal(t, []string{account}, conn.Accounts)
		assert.Equal(t, chains.ChainID(1), conn.ChainID)
		assert.Same(t, p, conn.Provider)

		assert.Equal(t, session.State{ChainIDHex: "0x1", LastWallet: walletName, Connected: true}, f.stored(t))
		assert.Equal(t, wallet.StateConnected, f.svc.State())

		require.Len(t, events, 1)
		assert.Equal(t, wallet.ConnectEvent{
			Accounts:   []string{account},
			ChainID:    1,
			ChainIDHex: "0x1",
			Provider:   walletName,
		}, events[0])

		display := f.svc.Display()
		assert.True(t, display.Connected)
		assert.Equal(t, "0xAbC...1234", display.Short)
		assert.Empty(t, f.notifier.visible())
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t, memory.New())

		_, err := f.svc.ConnectWallet(t.Context(), "Nope")
		assert.ErrorIs(t, err, wallet.ErrProviderNotFound)
		assert.Equal(t, wallet.StateDisconnected, f.svc.State())
	})

	t.Run("rejected request is returned and state restored", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		p.Fail("eth_requestAccounts", &jsonrpc.Error{Code: jsonrpc.CodeUserRejected, Message: "user rejected the request"})
		f.register(p)

		_, err := f.svc.ConnectWallet(t.Context(), walletName)
		require.Error(t, err)

		code, ok := jsonrpc.ErrorCode(err)
		require.True(t, ok)
		assert.Equal(t, jsonrpc.CodeUserRejected, code)

		assert.Equal(t, wallet.StateDisconnected, f.svc.State())
		assert.Equal(t, session.State{}, f.stored(t))
		_, bound := f.svc.Provider()
		assert.False(t, bound)
	})

	t.Run("empty accounts", func(t *testing.T) {
		f := newFixture(t, memory.New())
		f.register(acme([]string{}, "0x1"))

		_, err := f.svc.ConnectWallet(t.Context(), walletName)
		assert.ErrorIs(t, err, wallet.ErrNoAccounts)
	})

	t.Run("reconnecting keeps a single listener set", func(t *testing.T) {
		f := newFixture(t, memory.New())
		first := acme([]string{account}, "0x1")
		f.connect(t, first)

		_, err := f.svc.ConnectWallet(t.Context(), walletName)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Subscribers())

		second := acme([]string{otherAddr}, "0x1")
		f.bus.Register(second.Detail("Other Wallet"))

		_, err = f.svc.ConnectWallet(t.Context(), "Other Wallet")
		require.NoError(t, err)
		assert.Equal(t, 0, first.Subscribers())
		assert.Equal(t, 1, second.Subscribers())
	})

	t.Run("unsupported chain raises one notice", func(t *testing.T) {
		f := newFixture(t, memory.New())
		f.connect(t, acme([]string{account}, "0x89"))

		visible := f.notifier.visible()
		require.Len(t, visible, 1)
		assert.Contains(t, visible[0], "Unknown (0x89)")
	})
}

func TestService_VerifyConnectionState(t *testing.T) {
	opts := wallet.VerifyOptions{AllowDisconnect: true, Retries: 2, RetryDelay: time.Millisecond}

	t.Run("accounts gone on every attempt disconnects once", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var disconnects atomic.Int32
		f.svc.OnDisconnect(func() { disconnects.Add(1) })

		p.Respond("eth_accounts", []string{})

		connected, err := f.svc.VerifyConnectionState(t.Context(), opts)
		require.NoError(t, err)
		assert.False(t, connected)

		assert.Len(t, p.Calls("eth_accounts"), 3)
		assert.Equal(t, session.State{}, f.stored(t))
		assert.Equal(t, int32(1), disconnects.Load())
		assert.Equal(t, wallet.StateDisconnected, f.svc.State())
		assert.Equal(t, 0, p.Subscribers())

		connected, err = f.svc.VerifyConnectionState(t.Context(), opts)
		require.NoError(t, err)
		assert.False(t, connected)
		assert.Equal(t, int32(1), disconnects.Load())
	})

	t.Run("transient empty accounts are tolerated", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var disconnects atomic.Int32
		f.svc.OnDisconnect(func() { disconnects.Add(1) })

		p.Sequence("eth_accounts", []string{}, []string{account})

		connected, err := f.svc.VerifyConnectionState(t.Context(), opts)
		require.NoError(t, err)
		assert.True(t, connected)

		assert.Zero(t, disconnects.Load())
		assert.True(t, f.stored(t).Connected)
		assert.Equal(t, wallet.StateConnected, f.svc.State())
	})

	t.Run("rpc errors count as failed attempts", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		calls := 0
		p.Handle("eth_accounts", func(...any) (any, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("wallet busy")
			}
			return []string{account}, nil
		})

		connected, err := f.svc.VerifyConnectionState(t.Context(), opts)
		require.NoError(t, err)
		assert.True(t, connected)
	})

	t.Run("without permission the session is kept", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		p.Respond("eth_accounts", []string{})

		connected, err := f.svc.VerifyConnectionState(t.Context(), wallet.VerifyOptions{Retries: 1, RetryDelay: time.Millisecond})
		require.NoError(t, err)
		assert.False(t, connected)

		assert.True(t, f.stored(t).Connected)
		assert.Equal(t, wallet.StateConnected, f.svc.State())
	})

	t.Run("chain change is detected against the stored chain", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var changes []wallet.ChainChangeEvent
		f.svc.OnChainChange(func(e wallet.ChainChangeEvent) { changes = append(changes, e) })

		_, err := f.svc.VerifyConnectionState(t.Context(), opts)
		require.NoError(t, err)
		assert.Empty(t, changes)

		p.Respond("eth_chainId", "0x89")
		_, err = f.svc.VerifyConnectionState(t.Context(), opts)
		require.NoError(t, err)

		require.Len(t, changes, 1)
		assert.Equal(t, chains.ChainID(137), changes[0].ChainID)
		assert.Equal(t, "0x89", f.stored(t).ChainIDHex)
	})

	t.Run("concurrent callers share one pass", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		release := make(chan struct{})
		var calls atomic.Int32
		p.Handle("eth_accounts", func(...any) (any, error) {
			calls.Add(1)
			<-release
			return []string{account}, nil
		})

		results := make(chan bool, 2)
		verify := func() {
			connected, _ := f.svc.VerifyConnectionState(context.Background(), opts)
			results <- connected
		}

		go verify()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		go verify()
		time.Sleep(20 * time.Millisecond)
		close(release)

		assert.True(t, <-results)
		assert.True(t, <-results)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("stale pass is discarded after a disconnect", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		release := make(chan struct{})
		started := make(chan struct{})
		p.Handle("eth_accounts", func(...any) (any, error) {
			close(started)
			<-release
			return []string{account}, nil
		})

		var changes atomic.Int32
		f.svc.OnChainChange(func(wallet.ChainChangeEvent) { changes.Add(1) })

		result := make(chan bool, 1)
		go func() {
			connected, _ := f.svc.VerifyConnectionState(context.Background(), opts)
			result <- connected
		}()

		<-started
		require.NoError(t, f.svc.Disconnect(t.Context()))
		close(release)

		assert.False(t, <-result)
		assert.Equal(t, session.State{}, f.stored(t))
		assert.Equal(t, wallet.StateDisconnected, f.svc.State())
		assert.Zero(t, changes.Load())
	})

	t.Run("stale pass cannot persist over a disconnect", func(t *testing.T) {
		store := newGatedStore(session.KeyChainID)
		f := newFixture(t, store)
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var disconnects atomic.Int32
		f.svc.OnDisconnect(func() { disconnects.Add(1) })

		store.armed.Store(true)

		verified := make(chan struct{})
		go func() {
			defer close(verified)
			f.svc.VerifyConnectionState(context.Background(), opts)
		}()
		<-store.parked

		disconnected := make(chan error, 1)
		go func() {
			disconnected <- f.svc.Disconnect(context.Background())
		}()

		time.Sleep(20 * time.Millisecond)
		close(store.release)

		<-verified
		require.NoError(t, <-disconnected)

		assert.Equal(t, session.State{}, f.stored(t))
		assert.Equal(t, wallet.StateDisconnected, f.svc.State())
		assert.False(t, f.svc.IsConnected(t.Context()))
		assert.Equal(t, int32(1), disconnects.Load())
	})
}

func TestService_ProviderEvents(t *testing.T) {
	t.Run("chain change is emitted once per new chain", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var changes []wallet.ChainChangeEvent
		f.svc.OnChainChange(func(e wallet.ChainChangeEvent) { changes = append(changes, e) })

		p.EmitChainChanged("0x1")
		assert.Empty(t, changes)

		p.EmitChainChanged("0x89")
		p.EmitChainChanged("0x89")

		require.Len(t, changes, 1)
		assert.Equal(t, wallet.ChainChangeEvent{
			ChainID:    137,
			HexChainID: "0x89",
			Name:       "Unknown (0x89)",
			Allowed:    false,
		}, changes[0])
		assert.Len(t, f.notifier.visible(), 1)

		p.EmitChainChanged("0x1")
		require.Len(t, changes, 2)
		assert.True(t, changes[1].Allowed)
		assert.Equal(t, "Ethereum", changes[1].Name)
		assert.Empty(t, f.notifier.visible())
	})

	t.Run("concurrent identical chain changes are emitted once", func(t *testing.T) {
		f := newFixture(t, &slowStore{Store: memory.New(), key: session.KeyChainID, delay: 20 * time.Millisecond})
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var changes atomic.Int32
		f.svc.OnChainChange(func(wallet.ChainChangeEvent) { changes.Add(1) })

		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.EmitChainChanged("0x89")
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), changes.Load())
		assert.Equal(t, "0x89", f.stored(t).ChainIDHex)
		assert.Len(t, f.notifier.visible(), 1)
	})

	t.Run("switch racing the wallet's own chain event is emitted once", func(t *testing.T) {
		f := newFixture(t, &slowStore{Store: memory.New(), key: session.KeyChainID, delay: 20 * time.Millisecond})
		p := acme([]string{account}, "0x1")
		p.Respond("wallet_switchEthereumChain", nil)
		f.connect(t, p)

		var changes atomic.Int32
		f.svc.OnChainChange(func(wallet.ChainChangeEvent) { changes.Add(1) })

		polygon := chains.Network{Key: "polygon", Name: "Polygon", ChainID: 137}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.SwitchNetwork(context.Background(), polygon))
		}()
		go func() {
			defer wg.Done()
			p.EmitChainChanged("0x89")
		}()
		wg.Wait()

		assert.Equal(t, int32(1), changes.Load())
		assert.Equal(t, "0x89", f.stored(t).ChainIDHex)
	})

	t.Run("malformed chain id is ignored", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		p.EmitChainChanged("not-a-chain")
		assert.Equal(t, "0x1", f.stored(t).ChainIDHex)
	})

	t.Run("account change updates the display", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		p.EmitAccountsChanged([]string{otherAddr})

		display := f.svc.Display()
		assert.Equal(t, otherAddr, display.Address)
		assert.Equal(t, "0xDeF...5678", display.Short)
	})

	t.Run("empty accounts reconcile and disconnect", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		disconnected := make(chan struct{})
		f.svc.OnDisconnect(func() { close(disconnected) })

		p.Respond("eth_accounts", []string{})
		p.EmitAccountsChanged([]string{})

		select {
		case <-disconnected:
		case <-time.After(2 * time.Second):
			t.Fatal("disconnect was not fired")
		}
		assert.False(t, f.stored(t).Connected)
	})

	t.Run("provider disconnect reconciles and keeps a live session", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		p.EmitDisconnect(errors.New("socket closed"))

		require.Eventually(t, func() bool {
			return len(p.Calls("eth_accounts")) > 0
		}, 2*time.Second, time.Millisecond)
		require.Eventually(t, func() bool {
			return f.svc.State() == wallet.StateConnected
		}, 2*time.Second, time.Millisecond)
		assert.True(t, f.stored(t).Connected)
	})

	t.Run("events from a replaced provider are dropped", func(t *testing.T) {
		f := newFixture(t, memory.New())
		first := acme([]string{account}, "0x1")
		f.connect(t, first)

		second := acme([]string{otherAddr}, "0x1")
		f.bus.Register(second.Detail("Other Wallet"))
		_, err := f.svc.ConnectWallet(t.Context(), "Other Wallet")
		require.NoError(t, err)

		first.EmitAccountsChanged([]string{account})
		assert.Equal(t, otherAddr, f.svc.Display().Address)
	})
}

func TestService_Disconnect(t *testing.T) {
	t.Run("revokes and clears", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		p.Respond("wallet_revokePermissions", nil)
		f.connect(t, p)

		var disconnects int
		f.svc.OnDisconnect(func() { disconnects++ })

		require.NoError(t, f.svc.Disconnect(t.Context()))

		revokes := p.Calls("wallet_revokePermissions")
		require.Len(t, revokes, 1)
		assert.Equal(t, []any{map[string]any{"eth_accounts": map[string]any{}}}, revokes[0].Params)

		assert.Equal(t, session.State{}, f.stored(t))
		assert.Equal(t, 1, disconnects)
		assert.Equal(t, wallet.Display{}, f.svc.Display())

		require.NoError(t, f.svc.Disconnect(t.Context()))
		assert.Equal(t, 1, disconnects)
	})

	t.Run("revoke failure does not block", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		require.NoError(t, f.svc.Disconnect(t.Context()))
		assert.Len(t, p.Calls("wallet_revokePermissions"), 1)
		assert.Equal(t, session.State{}, f.stored(t))
	})

	t.Run("clears the unsupported network notice", func(t *testing.T) {
		f := newFixture(t, memory.New())
		f.connect(t, acme([]string{account}, "0x89"))
		require.Len(t, f.notifier.visible(), 1)

		require.NoError(t, f.svc.Disconnect(t.Context()))
		assert.Empty(t, f.notifier.visible())
	})
}

func TestService_SwitchNetwork(t *testing.T) {
	polygon := chains.Network{Key: "polygon", Name: "Polygon", RPCURL: "https://polygon-rpc.com", ChainID: 137}

	t.Run("requires a connection", func(t *testing.T) {
		f := newFixture(t, memory.New())

		err := f.svc.SwitchNetwork(t.Context(), chains.Ethereum)
		assert.ErrorIs(t, err, wallet.ErrNotConnected)
	})

	t.Run("persists the new chain", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		p.Respond("wallet_switchEthereumChain", nil)
		f.connect(t, p)

		var changes []wallet.ChainChangeEvent
		f.svc.OnChainChange(func(e wallet.ChainChangeEvent) { changes = append(changes, e) })

		require.NoError(t, f.svc.SwitchNetwork(t.Context(), polygon))

		switches := p.Calls("wallet_switchEthereumChain")
		require.Len(t, switches, 1)
		assert.Equal(t, []any{map[string]string{"chainId": "0x89"}}, switches[0].Params)

		assert.Equal(t, "0x89", f.stored(t).ChainIDHex)
		require.Len(t, changes, 1)
		assert.Equal(t, chains.ChainID(137), changes[0].ChainID)
	})

	t.Run("failure is returned and nothing changes", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		p.Fail("wallet_switchEthereumChain", &jsonrpc.Error{Code: jsonrpc.CodeUnrecognizedChain, Message: "unrecognized chain"})
		f.connect(t, p)

		err := f.svc.SwitchNetwork(t.Context(), polygon)
		code, ok := jsonrpc.ErrorCode(err)
		require.True(t, ok)
		assert.Equal(t, jsonrpc.CodeUnrecognizedChain, code)
		assert.Equal(t, "0x1", f.stored(t).ChainIDHex)
	})
}

func TestService_RestoreState(t *testing.T) {
	t.Run("restores a live session without interaction", func(t *testing.T) {
		store := memory.New()
		p := acme([]string{account}, "0x1")

		first := newFixture(t, store)
		first.connect(t, p)
		first.svc.Close()

		f := newFixture(t, store)
		f.register(p)

		require.NoError(t, f.svc.RestoreState(t.Context()))

		assert.True(t, f.svc.IsConnected(t.Context()))
		got, ok := f.svc.Account(t.Context())
		require.True(t, ok)
		assert.Equal(t, account, got)

		id, ok := f.svc.ChainID(t.Context())
		require.True(t, ok)
		assert.Equal(t, chains.ChainID(1), id)
		assert.Equal(t, wallet.StateConnected, f.svc.State())
	})

	t.Run("revoked wallet is disconnected", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, session.New(store).Save(t.Context(), session.State{ChainIDHex: "0x1", LastWallet: walletName, Connected: true}))

		f := newFixture(t, store)
		f.register(acme([]string{}, "0x1"))

		require.NoError(t, f.svc.RestoreState(t.Context()))
		assert.False(t, f.svc.IsConnected(t.Context()))
		assert.Equal(t, wallet.StateDisconnected, f.svc.State())
	})

	t.Run("late announcement triggers reconciliation", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, session.New(store).Save(t.Context(), session.State{ChainIDHex: "0x1", LastWallet: walletName, Connected: true}))

		f := newFixture(t, store)
		require.NoError(t, f.svc.RestoreState(t.Context()))
		assert.Equal(t, wallet.StateDisconnected, f.svc.State())

		f.register(acme([]string{account}, "0x1"))

		require.Eventually(t, func() bool {
			return f.svc.State() == wallet.StateConnected
		}, 2*time.Second, time.Millisecond)
	})

	t.Run("unsupported network notice waits for startup to finish", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, session.New(store).Save(t.Context(), session.State{ChainIDHex: "0x89", LastWallet: walletName, Connected: true}))

		f := newFixture(t, store)
		p := acme([]string{account}, "0x89")
		f.bus.OnRequest(func() { f.bus.Announce(p.Detail(walletName)) })

		require.NoError(t, f.svc.RestoreState(t.Context()))

		assert.Equal(t, wallet.StateConnected, f.svc.State())
		assert.Equal(t, 1, f.notifier.shownCount())
		assert.Len(t, f.notifier.visible(), 1)
	})

	t.Run("resume reconciles", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		p.Respond("eth_accounts", []string{})
		assert.False(t, f.svc.Resume(t.Context()))
		assert.False(t, f.svc.IsConnected(t.Context()))
	})
}

// gatedResolver answers from results, holding lookups for gated addresses
// until their channel closes.
type gatedResolver struct {
	mu      sync.Mutex
	order   names.Order
	results map[string]names.Result
	gates   map[string]chan struct{}
}

func (r *gatedResolver) Resolve(ctx context.Context, address string) (names.Result, bool) {
	r.mu.Lock()
	gate := r.gates[address]
	result, ok := r.results[address]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return names.Result{}, false
		}
	}
	return result, ok
}

func (r *gatedResolver) SetOrder(order names.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = order
	return nil
}

func (r *gatedResolver) Order() names.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order
}

func TestService_NameResolution(t *testing.T) {
	t.Run("resolved name is shown", func(t *testing.T) {
		resolver := &gatedResolver{
			order:   names.OrderWNSFirst,
			results: map[string]names.Result{account: {Name: "acme.wei", Source: names.SourceWNS}},
		}
		f := newFixture(t, memory.New(), wallet.WithNameResolver(resolver))
		f.connect(t, acme([]string{account}, "0x1"))

		require.Eventually(t, func() bool {
			return f.svc.Display().Name == "acme.wei"
		}, 2*time.Second, time.Millisecond)
		assert.Equal(t, names.SourceWNS, f.svc.Display().Source)
	})

	t.Run("stale lookup is not applied to a new account", func(t *testing.T) {
		gate := make(chan struct{})
		resolver := &gatedResolver{
			order: names.OrderWNSFirst,
			results: map[string]names.Result{
				account:   {Name: "old.eth", Source: names.SourceENS},
				otherAddr: {Name: "new.eth", Source: names.SourceENS},
			},
			gates: map[string]chan struct{}{account: gate},
		}

		var hooks atomic.Int32
		f := newFixture(t, memory.New(),
			wallet.WithNameResolver(resolver),
			wallet.WithDisplayHook(func(wallet.Display) { hooks.Add(1) }),
		)
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		p.EmitAccountsChanged([]string{otherAddr})
		require.Eventually(t, func() bool {
			return f.svc.Display().Name == "new.eth"
		}, 2*time.Second, time.Millisecond)

		close(gate)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, "new.eth", f.svc.Display().Name)
		assert.Equal(t, otherAddr, f.svc.Display().Address)
		assert.Positive(t, hooks.Load())
	})

	t.Run("order change re-resolves", func(t *testing.T) {
		resolver := &gatedResolver{
			order:   names.OrderWNSFirst,
			results: map[string]names.Result{account: {Name: "acme.eth", Source: names.SourceENS}},
		}
		f := newFixture(t, memory.New(), wallet.WithNameResolver(resolver))
		f.connect(t, acme([]string{account}, "0x1"))

		require.NoError(t, f.svc.SetNameResolutionOrder(t.Context(), names.OrderENSFirst))
		assert.Equal(t, names.OrderENSFirst, f.svc.NameResolutionOrder())
		assert.Equal(t, names.OrderENSFirst, resolver.Order())

		require.Eventually(t, func() bool {
			return f.svc.Display().Name == "acme.eth"
		}, 2*time.Second, time.Millisecond)
	})

	t.Run("invalid order is rejected", func(t *testing.T) {
		f := newFixture(t, memory.New())

		err := f.svc.SetNameResolutionOrder(t.Context(), "ens-only")
		assert.ErrorIs(t, err, names.ErrInvalidOrder)
		assert.Equal(t, names.OrderWNSFirst, f.svc.NameResolutionOrder())
	})
}

func TestService_Close(t *testing.T) {
	t.Run("waits for background reconciliation", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		var once sync.Once
		started := make(chan struct{})
		release := make(chan struct{})
		p.Handle("eth_accounts", func(...any) (any, error) {
			once.Do(func() { close(started) })
			<-release
			return []string{account}, nil
		})

		p.EmitDisconnect(errors.New("socket closed"))
		<-started

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			f.svc.Close()
		}()

		assert.Never(t, func() bool {
			select {
			case <-closed:
				return true
			default:
				return false
			}
		}, 30*time.Millisecond, time.Millisecond)

		close(release)
		<-closed
	})

	t.Run("events after close start no work", func(t *testing.T) {
		f := newFixture(t, memory.New())
		p := acme([]string{account}, "0x1")
		f.connect(t, p)

		f.svc.Close()
		p.EmitDisconnect(errors.New("socket closed"))
		p.EmitAccountsChanged(nil)

		assert.Empty(t, p.Calls("eth_accounts"))
		assert.Zero(t, p.Subscribers())

		_, err := f.svc.ConnectWallet(t.Context(), walletName)
		assert.ErrorIs(t, err, wallet.ErrClosed)
	})
}
