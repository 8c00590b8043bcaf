package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabapcia/dappkit/internal/chains"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	op      string
	element Element
	id      string
}

// recordingView keeps every call it receives.
type recordingView struct {
	mu    sync.Mutex
	calls []call
}

func newRecordingView() *recordingView {
	return &recordingView{}
}

func (v *recordingView) record(c call) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, c)
}

func (v *recordingView) Mount(e Element)   { v.record(call{op: "mount", element: e, id: e.ID}) }
func (v *recordingView) Update(e Element)  { v.record(call{op: "update", element: e, id: e.ID}) }
func (v *recordingView) Hide(id string)    { v.record(call{op: "hide", id: id}) }
func (v *recordingView) Unmount(id string) { v.record(call{op: "unmount", id: id}) }

func (v *recordingView) ops(id string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var ops []string
	for _, c := range v.calls {
		if c.id == id {
			ops = append(ops, c.op)
		}
	}
	return ops
}

func (v *recordingView) find(op, id string) (call, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, c := range v.calls {
		if c.op == op && c.id == id {
			return c, true
		}
	}
	return call{}, false
}

// waitFor blocks until the view has received op for id.
func (v *recordingView) waitFor(t *testing.T, op, id string) call {
	t.Helper()

	var found call
	require.Eventually(t, func() bool {
		var ok bool
		found, ok = v.find(op, id)
		return ok
	}, 2*time.Second, time.Millisecond, "view never received %s for %s", op, id)
	return found
}

type fakeTx struct {
	hash    string
	chainID chains.ChainID
	waits   atomic.Int32
	result  chan waitResult
}

type waitResult struct {
	receipt Receipt
	err     error
}

func newFakeTx(hash string) *fakeTx {
	return &fakeTx{hash: hash, chainID: 1, result: make(chan waitResult, 1)}
}

func (tx *fakeTx) Hash() string            { return tx.hash }
func (tx *fakeTx) ChainID() chains.ChainID { return tx.chainID }

func (tx *fakeTx) Wait(ctx context.Context) (Receipt, error) {
	tx.waits.Add(1)
	select {
	case r := <-tx.result:
		return r.receipt, r.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

func newCenter(t *testing.T, view View, opts ...Option) *Center {
	t.Helper()

	registry, err := chains.NewRegistry(chains.DefaultNetworks())
	require.NoError(t, err)

	opts = append([]Option{WithHideDelay(5 * time.Millisecond)}, opts...)
	c, err := New(registry, view, opts...)
	require.NoError(t, err)

	t.Cleanup(c.Close)
	return c
}

func TestCenter_Show(t *testing.T) {
	t.Run("escapes text and hides after its duration", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		id := c.Show("<b>hi</b>", SeverityInfo, WithDuration(10*time.Millisecond))
		require.NotEmpty(t, id)

		mounted := view.waitFor(t, "mount", id)
		assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", mounted.element.Markup)
		assert.Equal(t, "<b>hi</b>", mounted.element.Message)
		assert.True(t, mounted.element.Closable)
		assert.True(t, mounted.element.Progress)

		view.waitFor(t, "unmount", id)
		assert.Equal(t, []string{"mount", "hide", "unmount"}, view.ops(id))
	})

	t.Run("html option keeps markup", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		id := c.Show("<b>hi</b>", SeverityInfo, AsHTML(), WithoutClose(), Persistent())

		mounted := view.waitFor(t, "mount", id)
		assert.Equal(t, "<b>hi</b>", mounted.element.Markup)
		assert.False(t, mounted.element.Closable)
		assert.False(t, mounted.element.Progress)
		assert.Zero(t, mounted.element.Duration)
	})

	t.Run("persistent notice stays until hidden", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		id := c.Show("wrong network", SeverityWarning, Persistent())
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, []string{"mount"}, view.ops(id))

		c.Hide(id)
		c.Hide(id)
		view.waitFor(t, "unmount", id)
		assert.Equal(t, []string{"mount", "hide", "unmount"}, view.ops(id))
	})

	t.Run("ids are unique", func(t *testing.T) {
		c := newCenter(t, newRecordingView())

		a := c.Show("a", SeverityInfo, Persistent())
		b := c.Show("b", SeverityInfo, Persistent())
		assert.NotEqual(t, a, b)
	})
}

func TestCenter_Track(t *testing.T) {
	t.Run("successful receipt settles and auto removes", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		tx := newFakeTx("0xdead")
		var successes atomic.Int32
		var pendingHash string

		id := c.Track(t.Context(), tx,
			WithRemoveDelay(10*time.Millisecond),
			OnPending(func(hash string) { pendingHash = hash }),
			OnSuccess(func(Receipt) { successes.Add(1) }),
			OnError(func(error) { t.Error("unexpected error callback") }),
		)
		assert.Equal(t, "0xdead", id)

		mounted := view.waitFor(t, "mount", id)
		assert.Equal(t, StatusPending, mounted.element.Status)
		assert.Equal(t, "https://etherscan.io/tx/0xdead", mounted.element.ExplorerURL)
		assert.Equal(t, "Transaction", mounted.element.Label)

		tx.result <- waitResult{receipt: Receipt{TxHash: "0xdead", Status: ReceiptStatusSuccess}}

		updated := view.waitFor(t, "update", id)
		assert.Equal(t, StatusSuccess, updated.element.Status)
		assert.Equal(t, "Confirmed", updated.element.StatusText)

		view.waitFor(t, "unmount", id)
		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, "0xdead", pendingHash)

		_, ok := c.Status(id)
		assert.False(t, ok)
	})

	t.Run("tracking the same hash twice waits once", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		tx := newFakeTx("0xbeef")
		first := c.Track(t.Context(), tx)
		second := c.Track(t.Context(), tx)
		assert.Equal(t, first, second)

		tx.result <- waitResult{receipt: Receipt{Status: ReceiptStatusSuccess}}
		view.waitFor(t, "update", first)

		assert.Equal(t, int32(1), tx.waits.Load())
		assert.Equal(t, []string{"mount", "update"}, view.ops(first))
	})

	t.Run("tracking a hash again after its entry was hidden waits once", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		tx := newFakeTx("0xfeed")
		id := c.Track(t.Context(), tx)
		require.Eventually(t, func() bool { return tx.waits.Load() == 1 }, 2*time.Second, time.Millisecond)

		c.Hide(id)
		view.waitFor(t, "unmount", id)

		assert.Equal(t, id, c.Track(t.Context(), tx))
		assert.Never(t, func() bool { return tx.waits.Load() > 1 }, 20*time.Millisecond, time.Millisecond)

		_, ok := c.Status(id)
		assert.False(t, ok)
		assert.Equal(t, []string{"mount", "hide", "unmount"}, view.ops(id))
	})

	t.Run("reverted receipt reports transaction failed", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		tx := newFakeTx("0xbad")
		errs := make(chan error, 1)
		id := c.Track(t.Context(), tx, WithAutoRemove(false), OnError(func(err error) { errs <- err }))

		tx.result <- waitResult{receipt: Receipt{Status: 0}}

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrTransactionFailed)
		case <-time.After(2 * time.Second):
			t.Fatal("error callback never ran")
		}

		status, ok := c.Status(id)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, status)
	})

	t.Run("wait error is passed through", func(t *testing.T) {
		c := newCenter(t, newRecordingView())

		tx := newFakeTx("0xfeed")
		errs := make(chan error, 1)
		c.Track(t.Context(), tx, WithAutoRemove(false), OnError(func(err error) { errs <- err }))

		boom := errors.New("receipt unavailable")
		tx.result <- waitResult{err: boom}

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, boom)
		case <-time.After(2 * time.Second):
			t.Fatal("error callback never ran")
		}
	})

	t.Run("removed entry still runs callbacks without rendering", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		tx := newFakeTx("0xc0de")
		done := make(chan struct{})
		id := c.Track(t.Context(), tx, OnSuccess(func(Receipt) { close(done) }))

		c.RemoveTransaction(id)
		view.waitFor(t, "unmount", id)

		tx.result <- waitResult{receipt: Receipt{Status: ReceiptStatusSuccess}}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("success callback never ran")
		}

		assert.Equal(t, []string{"mount", "hide", "unmount"}, view.ops(id))
	})

	t.Run("status settles once", func(t *testing.T) {
		c := newCenter(t, newRecordingView())

		tx := newFakeTx("0xf00d")
		id := c.Track(t.Context(), tx, WithAutoRemove(false))

		assert.True(t, c.settle(t.Context(), id, StatusSuccess, "Confirmed"))
		assert.False(t, c.settle(t.Context(), id, StatusFailed, "Failed"))

		status, ok := c.Status(id)
		require.True(t, ok)
		assert.Equal(t, StatusSuccess, status)
	})

	t.Run("close abandons pending waits", func(t *testing.T) {
		registry, err := chains.NewRegistry(chains.DefaultNetworks())
		require.NoError(t, err)

		c, err := New(registry, newRecordingView())
		require.NoError(t, err)

		tx := newFakeTx("0xabba")
		errs := make(chan error, 1)
		c.Track(t.Context(), tx, OnError(func(err error) { errs <- err }))

		c.Close()
		assert.ErrorIs(t, <-errs, context.Canceled)
		assert.Empty(t, c.Track(t.Context(), newFakeTx("0x01")))
		assert.Empty(t, c.Show("late", SeverityInfo))
	})
}

func TestCenter_Clear(t *testing.T) {
	t.Run("clear transactions keeps notices", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		notice := c.Show("hello", SeverityInfo, Persistent())
		id := c.Track(t.Context(), newFakeTx("0x1234"))

		c.ClearTransactions()
		view.waitFor(t, "unmount", id)

		assert.Equal(t, []string{"mount"}, view.ops(notice))
	})

	t.Run("clear all removes everything", func(t *testing.T) {
		view := newRecordingView()
		c := newCenter(t, view)

		notice := c.Show("hello", SeverityInfo, Persistent())
		id := c.Track(t.Context(), newFakeTx("0x5678"))

		c.ClearAll()
		view.waitFor(t, "unmount", notice)
		view.waitFor(t, "unmount", id)
	})
}
