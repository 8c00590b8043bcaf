// Package notification shows transient notices and follows submitted
// transactions until their receipt settles. Rendering is delegated to a View.
package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/pkg/logger"
	"github.com/gabapcia/dappkit/internal/pkg/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/gabapcia/dappkit/internal/notification"

// ErrTransactionFailed is reported to OnError when a receipt has a non-success status.
var ErrTransactionFailed = errors.New("transaction failed")

type notice struct {
	element Element
	expiry  *time.Timer
}

type tracked struct {
	element Element
	config  trackConfig
	status  Status
}

// Center owns every visible notice and tracked transaction.
type Center struct {
	registry  *chains.Registry
	view      View
	hideDelay time.Duration

	settled metric.Int64Counter
	pending metric.Int64UpDownCounter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	notices      map[string]*notice
	transactions map[string]*tracked
	timers       map[*time.Timer]struct{}

	// awaited holds every hash whose receipt was awaited, including the ones
	// whose entry is gone from the view.
	awaited types.Set[string]
}

// New creates a Center rendering to view. The registry supplies explorer
// links for tracked transactions.
func New(registry *chains.Registry, view View, opts ...Option) (*Center, error) {
	cfg := config{
		hideDelay:     defaultHideDelay,
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.meterProvider.Meter(meterName)

	settled, err := meter.Int64Counter(
		"dappkit.transactions.settled",
		metric.WithDescription("Tracked transactions that reached a terminal status."),
	)
	if err != nil {
		return nil, err
	}

	pending, err := meter.Int64UpDownCounter(
		"dappkit.transactions.pending",
		metric.WithDescription("Tracked transactions still waiting for a receipt."),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Center{
		registry:     registry,
		view:         view,
		hideDelay:    cfg.hideDelay,
		settled:      settled,
		pending:      pending,
		ctx:          ctx,
		cancel:       cancel,
		notices:      make(map[string]*notice),
		transactions: make(map[string]*tracked),
		timers:       make(map[*time.Timer]struct{}),
		awaited:      types.NewSet[string](),
	}, nil
}

// after runs fn once d elapses unless the Center is closed first. Callers
// hold c.mu.
func (c *Center) after(d time.Duration, fn func()) *time.Timer {
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.timers, timer)
		if !c.closed {
			fn()
		}
	})
	c.timers[timer] = struct{}{}
	return timer
}

func (c *Center) stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	timer.Stop()
	delete(c.timers, timer)
}

// fade hides id now and unmounts it after the hide delay. Callers hold c.mu.
func (c *Center) fade(id string) {
	c.view.Hide(id)
	c.after(c.hideDelay, func() {
		c.view.Unmount(id)
	})
}

// Show displays message and returns its id. Unless Persistent is given the
// notice hides itself after its duration.
func (c *Center) Show(message string, severity Severity, opts ...NoticeOption) string {
	cfg := noticeConfig{
		duration: defaultDuration,
		closable: true,
		progress: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	markup := html.EscapeString(message)
	if cfg.html {
		markup = message
	}

	n := &notice{
		element: Element{
			ID:       uuid.Must(uuid.NewV7()).String(),
			Kind:     KindNotice,
			Severity: severity,
			Message:  message,
			Markup:   markup,
			Closable: cfg.closable,
			Progress: cfg.progress && cfg.duration > 0,
			Duration: max(cfg.duration, 0),
		},
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ""
	}

	c.notices[n.element.ID] = n
	c.view.Mount(n.element)

	if cfg.duration > 0 {
		id := n.element.ID
		n.expiry = c.after(cfg.duration, func() {
			c.hideLocked(id)
		})
	}

	return n.element.ID
}

// Hide removes a notice or a tracked transaction. Unknown ids are ignored.
func (c *Center) Hide(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.transactions[id]; ok {
		c.removeTransactionLocked(id)
		return
	}
	c.hideLocked(id)
}

func (c *Center) hideLocked(id string) {
	n, ok := c.notices[id]
	if !ok || c.closed {
		return
	}

	delete(c.notices, id)
	c.stopTimer(n.expiry)
	c.fade(id)
}

// Track renders a pending entry for tx and follows it to a receipt in the
// background. The id is the transaction hash. A hash is awaited at most once
// per Center: tracking it again returns the id without rendering or waiting,
// even after its entry was removed. Ending ctx abandons the wait and marks
// the transaction failed.
func (c *Center) Track(ctx context.Context, tx Transaction, opts ...TrackOption) string {
	cfg := trackConfig{
		label:       "Transaction",
		autoRemove:  true,
		removeDelay: defaultRemoveDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := tx.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ""
	}
	if c.awaited.Has(id) {
		return id
	}
	c.awaited.Add(id)

	entry := &tracked{
		element: Element{
			ID:          id,
			Kind:        KindTransaction,
			Label:       cfg.label,
			Hash:        id,
			ShortHash:   types.Shorten(id, 6, 4),
			ExplorerURL: c.explorerURL(tx),
			Status:      StatusPending,
			StatusText:  "Pending",
			Closable:    true,
		},
		config: cfg,
		status: StatusPending,
	}
	c.transactions[id] = entry
	c.view.Mount(entry.element)

	logger.Info(ctx, "tracking transaction", "tx.hash", id, "chain.id", tx.ChainID().String())
	c.pending.Add(ctx, 1)

	c.wg.Add(1)
	go c.watch(ctx, tx, cfg)

	return id
}

func (c *Center) explorerURL(tx Transaction) string {
	if c.registry == nil {
		return chains.DefaultExplorerURL + tx.Hash()
	}
	return c.registry.TxURL(tx.ChainID(), tx.Hash())
}

// watch awaits the receipt and settles the entry exactly once. Callbacks
// run even if the entry was removed meanwhile.
func (c *Center) watch(ctx context.Context, tx Transaction, cfg trackConfig) {
	defer c.wg.Done()

	id := tx.Hash()

	waitCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if cfg.onPending != nil {
		cfg.onPending(id)
	}

	receipt, err := tx.Wait(waitCtx)
	switch {
	case err != nil:
		c.settle(ctx, id, StatusFailed, "Failed")
		logger.Warn(ctx, "transaction wait failed", "tx.hash", id, "error", err)
		if cfg.onError != nil {
			cfg.onError(err)
		}
	case !receipt.Succeeded():
		c.settle(ctx, id, StatusFailed, "Failed")
		logger.Warn(ctx, "transaction reverted", "tx.hash", id, "tx.status", receipt.Status)
		if cfg.onError != nil {
			cfg.onError(fmt.Errorf("%w: %s", ErrTransactionFailed, id))
		}
	default:
		c.settle(ctx, id, StatusSuccess, "Confirmed")
		logger.Info(ctx, "transaction confirmed", "tx.hash", id, "tx.block", receipt.BlockNumber)
		if cfg.onSuccess != nil {
			cfg.onSuccess(receipt)
		}
	}

	if cfg.autoRemove {
		c.mu.Lock()
		if _, ok := c.transactions[id]; ok && !c.closed {
			c.after(cfg.removeDelay, func() {
				c.removeTransactionLocked(id)
			})
		}
		c.mu.Unlock()
	}
}

// settle moves a pending entry to status. It reports false when the entry
// is gone or already settled, in which case nothing is rendered.
func (c *Center) settle(ctx context.Context, id string, status Status, text string) bool {
	c.pending.Add(ctx, -1)
	c.settled.Add(ctx, 1, metric.WithAttributes(attribute.String("tx.status", string(status))))

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.transactions[id]
	if !ok || entry.status != StatusPending {
		return false
	}

	entry.status = status
	entry.element.Status = status
	entry.element.StatusText = text
	if !c.closed {
		c.view.Update(entry.element)
	}
	return true
}

// RemoveTransaction fades out a tracked transaction. Unknown ids are ignored.
func (c *Center) RemoveTransaction(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeTransactionLocked(id)
}

func (c *Center) removeTransactionLocked(id string) {
	if _, ok := c.transactions[id]; !ok || c.closed {
		return
	}

	delete(c.transactions, id)
	c.fade(id)
}

// Status returns the current status of a tracked transaction.
func (c *Center) Status(id string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.transactions[id]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// ClearTransactions removes every tracked transaction. Pending receipts are
// still awaited so their callbacks run.
func (c *Center) ClearTransactions() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.transactions {
		c.removeTransactionLocked(id)
	}
}

// ClearAll removes every notice and tracked transaction.
func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.notices {
		c.hideLocked(id)
	}
	for id := range c.transactions {
		c.removeTransactionLocked(id)
	}
}

// Close stops every timer, abandons pending receipt waits and waits for the
// watchers to return. The view receives no further calls.
func (c *Center) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for timer := range c.timers {
		timer.Stop()
	}
	clear(c.timers)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
