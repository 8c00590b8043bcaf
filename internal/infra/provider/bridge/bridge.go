// Package bridge connects to a wallet over a WebSocket carrying JSON-RPC 2.0.
// Requests are matched to responses by id; the wallet pushes change events
// as "wallet_event" notifications.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gabapcia/dappkit/internal/discovery"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/dappkit/internal/pkg/types"
	"github.com/gabapcia/dappkit/internal/pkg/x/chflow"

	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned for requests issued or pending when the socket goes away.
	ErrClosed = errors.New("wallet bridge closed")

	// ErrDisconnected is handed to Disconnect handlers.
	ErrDisconnected = errors.New("wallet disconnected")
)

// NotificationMethod is the JSON-RPC method of pushed wallet events.
const NotificationMethod = "wallet_event"

const eventQueueSize = 32

// Event is the params object of a wallet_event notification.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Provider is a discovery.Provider speaking to a remote wallet.
type Provider struct {
	discovery.Emitter

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan jsonrpc.Message
	closed  bool

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ discovery.Provider = (*Provider)(nil)

type config struct {
	handshakeTimeout time.Duration
	header           http.Header
}

// Option configures Dial.
type Option func(*config)

// WithHandshakeTimeout bounds the WebSocket opening handshake. Default: 10s.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handshakeTimeout = d
	}
}

// WithHeader adds headers to the handshake request, e.g. an auth token.
func WithHeader(h http.Header) Option {
	return func(c *config) {
		c.header = h
	}
}

// Dial opens the bridge at url and starts reading from it.
func Dial(ctx context.Context, url string, opts ...Option) (*Provider, error) {
	cfg := config{handshakeTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, cfg.header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet bridge %s: %w", url, err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	p := &Provider{
		conn:    conn,
		pending: make(map[string]chan jsonrpc.Message),
		events:  make(chan Event, eventQueueSize),
		ctx:     lifetime,
		cancel:  cancel,
	}

	p.wg.Add(2)
	go p.readLoop()
	go p.dispatchLoop()

	return p, nil
}

// Request sends method and waits for the matching response, ctx or the
// socket closing, whichever comes first.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	msg, err := jsonrpc.NewRequest(method, params...)
	if err != nil {
		return nil, err
	}

	respCh := make(chan jsonrpc.Message, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.pending[msg.ID] = respCh
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, msg.ID)
		p.mu.Unlock()
	}()

	if err := p.write(msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrClosed
		}
		return resp.Result, resp.Err()
	}
}

func (p *Provider) write(msg jsonrpc.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.WriteJSON(msg); err != nil {
		return errors.Join(ErrClosed, err)
	}
	return nil
}

// readLoop routes responses to their callers and queues notifications. When
// the socket fails it fails every pending request.
func (p *Provider) readLoop() {
	defer p.wg.Done()

	for {
		var msg jsonrpc.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			p.shutdown(err)
			return
		}

		switch {
		case msg.IsResponse():
			p.mu.Lock()
			respCh, ok := p.pending[msg.ID]
			delete(p.pending, msg.ID)
			p.mu.Unlock()

			if ok {
				respCh <- msg
			}
		case msg.IsNotification() && msg.Method == NotificationMethod:
			var ev Event
			if err := json.Unmarshal(msg.Params, &ev); err != nil {
				logger.Warn(p.ctx, "malformed wallet event", "error", err)
				continue
			}
			chflow.Send(p.ctx, p.events, ev)
		}
	}
}

// shutdown marks the provider closed and releases every waiter. A drop the
// caller did not ask for is reported to subscribers as a disconnect.
func (p *Provider) shutdown(cause error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.pending
	p.pending = make(map[string]chan jsonrpc.Message)
	p.mu.Unlock()

	for _, respCh := range pending {
		close(respCh)
	}

	if p.ctx.Err() == nil {
		logger.Warn(p.ctx, "wallet bridge dropped", "error", cause)
		chflow.Send(p.ctx, p.events, Event{Event: discovery.EventDisconnect})
	}
	p.cancel()
}

// dispatchLoop delivers events in order, off the read goroutine, so handlers
// may issue requests of their own.
func (p *Provider) dispatchLoop() {
	defer p.wg.Done()

	for {
		select {
		case ev := <-p.events:
			p.dispatch(ev)
		case <-p.ctx.Done():
			// flush what was queued before the drop
			for {
				select {
				case ev := <-p.events:
					p.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Provider) dispatch(ev Event) {
	switch ev.Event {
	case discovery.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(ev.Data, &accounts); err != nil {
			logger.Warn(p.ctx, "malformed accountsChanged payload", "error", err)
			return
		}
		p.EmitAccountsChanged(accounts)
	case discovery.EventChainChanged:
		chainID, err := decodeChainID(ev.Data)
		if err != nil {
			logger.Warn(p.ctx, "malformed chainChanged payload", "error", err)
			return
		}
		p.EmitChainChanged(chainID)
	case discovery.EventDisconnect:
		p.EmitDisconnect(ErrDisconnected)
	default:
		logger.Debug(p.ctx, "unknown wallet event", "wallet.event", ev.Event)
	}
}

// decodeChainID accepts the id as a hex string or a JSON number.
func decodeChainID(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}

	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return string(types.HexFromUint64(n)), nil
}

// Close shuts the socket and waits for the background goroutines. It does
// not emit a disconnect event.
func (p *Provider) Close() error {
	p.cancel()

	p.writeMu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	p.writeMu.Unlock()

	err := p.conn.Close()
	p.wg.Wait()
	return err
}
