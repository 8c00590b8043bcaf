// Package wallet is the connection manager. It binds one announced provider
// at a time, persists the session, reconciles it silently against the live
// wallet and publishes connect, disconnect and chain change events.
package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/names"
	"github.com/gabapcia/dappkit/internal/notification"
	"github.com/gabapcia/dappkit/internal/session"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/gabapcia/dappkit/internal/wallet"

var (
	ErrProviderNotFound = errors.New("wallet provider not found")
	ErrNoAccounts       = errors.New("wallet returned no accounts")
	ErrNotConnected     = errors.New("wallet not connected")
	ErrClosed           = errors.New("wallet manager closed")
)

// State is the position of the manager's state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconciling
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// Connection is the outcome of a successful ConnectWallet.
type Connection struct {
	Accounts []string
	ChainID  chains.ChainID
	Provider discovery.Provider
}

// ConnectEvent is published after a successful ConnectWallet.
type ConnectEvent struct {
	Accounts   []string
	ChainID    chains.ChainID
	ChainIDHex string
	Provider   string
}

// ChainChangeEvent is published when the wallet moves to a chain other than
// the stored one.
type ChainChangeEvent struct {
	ChainID    chains.ChainID
	HexChainID string
	Name       string
	Allowed    bool
}

// VerifyOptions tune a reconciliation pass. Retries counts the attempts
// after the first one.
type VerifyOptions struct {
	AllowDisconnect bool
	Retries         int
	RetryDelay      time.Duration
}

// Notifier shows and hides the unsupported-network warning.
type Notifier interface {
	Show(message string, severity notification.Severity, opts ...notification.NoticeOption) string
	Hide(id string)
}

// NameResolver looks up a display name for the connected address.
type NameResolver interface {
	Resolve(ctx context.Context, address string) (names.Result, bool)
	SetOrder(order names.Order) error
	Order() names.Order
}

// Service is the connection manager's public surface.
type Service interface {
	// ConnectWallet asks the named provider for accounts and binds it.
	ConnectWallet(ctx context.Context, name string) (Connection, error)

	// VerifyConnectionState silently re-checks the session against the
	// bound provider. It reports whether the session is still connected.
	VerifyConnectionState(ctx context.Context, opts VerifyOptions) (bool, error)

	// Disconnect revokes permissions (best effort) and clears the session.
	Disconnect(ctx context.Context) error

	// SwitchNetwork asks the wallet to move to network.
	SwitchNetwork(ctx context.Context, network chains.Network) error

	// RestoreState rebuilds the connection from the persisted session.
	RestoreState(ctx context.Context) error

	// Resume reconciles after the application regains focus.
	Resume(ctx context.Context) bool

	IsConnected(ctx context.Context) bool
	Account(ctx context.Context) (string, bool)
	ChainID(ctx context.Context) (chains.ChainID, bool)
	Provider() (discovery.Provider, bool)
	State() State
	Display() Display

	// OnConnect, OnDisconnect and OnChainChange keep a single subscriber
	// each; registering again replaces the previous one.
	OnConnect(fn func(ConnectEvent))
	OnDisconnect(fn func())
	OnChainChange(fn func(ChainChangeEvent))

	SetNameResolutionOrder(ctx context.Context, order names.Order) error
	NameResolutionOrder() names.Order

	// Close stops background work and detaches from the provider.
	Close()
}

type config struct {
	notifier    Notifier
	resolver    NameResolver
	retries     int
	retryDelay  time.Duration
	displayHook func(Display)
}

// Option configures the manager.
type Option func(*config)

// WithNotifier shows the unsupported-network warning through n.
func WithNotifier(n Notifier) Option {
	return func(c *config) {
		c.notifier = n
	}
}

// WithNameResolver enables name resolution for the connected address.
func WithNameResolver(r NameResolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithVerifyRetries sets the retries used by background reconciliation.
// Default: 2.
func WithVerifyRetries(n int) Option {
	return func(c *config) {
		c.retries = n
	}
}

// WithVerifyRetryDelay sets the pause between reconciliation attempts.
// Default: 500ms.
func WithVerifyRetryDelay(d time.Duration) Option {
	return func(c *config) {
		c.retryDelay = d
	}
}

// WithDisplayHook runs fn whenever the address display changes.
func WithDisplayHook(fn func(Display)) Option {
	return func(c *config) {
		c.displayHook = fn
	}
}

type nopNotifier struct{}

func (nopNotifier) Show(string, notification.Severity, ...notification.NoticeOption) string {
	return ""
}

func (nopNotifier) Hide(string) {}

type service struct {
	providers *discovery.Registry
	session   *session.Session
	chains    *chains.Registry
	cfg       config
	flight    singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	unwatch   func()
	closeOnce sync.Once

	// writeMu serializes session writes with the generation check that
	// decides whether they may happen. It is always taken before mu.
	writeMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	state        State
	detail       discovery.ProviderDetail
	sub          discovery.Subscription
	account      string
	chainID      chains.ChainID
	initializing bool
	noticeID     string
	generation   uint64
	display      Display
	resolution   uint64
	order        names.Order

	onConnect     func(ConnectEvent)
	onDisconnect  func()
	onChainChange func(ChainChangeEvent)
}

var _ Service = (*service)(nil)

var tracer = otel.Tracer(tracerName)

// New creates the manager and starts watching providers for late
// announcements of the persisted wallet.
func New(providers *discovery.Registry, sess *session.Session, registry *chains.Registry, opts ...Option) Service {
	cfg := config{
		notifier:    nopNotifier{},
		retries:     2,
		retryDelay:  500 * time.Millisecond,
		displayHook: func(Display) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	order := names.OrderWNSFirst
	if cfg.resolver != nil {
		order = cfg.resolver.Order()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &service{
		providers: providers,
		session:   sess,
		chains:    registry,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		order:     order,
	}
	s.unwatch = providers.OnProviderAdded(s.handleProviderAdded)

	return s
}

// background runs fn on a goroutine bound to the manager's lifetime.
func (s *service) background(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backgroundLocked(fn)
}

// backgroundLocked is background for callers holding s.mu. Nothing starts
// once Close has begun, so Close's wait covers every goroutine.
func (s *service) backgroundLocked(fn func(ctx context.Context)) {
	if s.closed {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// defaultVerifyOptions are used by every reconciliation the manager
// triggers on its own.
func (s *service) defaultVerifyOptions() VerifyOptions {
	return VerifyOptions{
		AllowDisconnect: true,
		Retries:         s.cfg.retries,
		RetryDelay:      s.cfg.retryDelay,
	}
}

func (s *service) OnConnect(fn func(ConnectEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = fn
}

func (s *service) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

func (s *service) OnChainChange(fn func(ChainChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChainChange = fn
}

func (s *service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *service) Provider() (discovery.Provider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil, false
	}
	return s.detail.Provider, true
}

func (s *service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.unwatch()
		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.unbindLocked()
	})
}
